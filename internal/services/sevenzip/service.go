// Package sevenzip drives the 7z command line engine.
package sevenzip

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/sevenzip-backup/internal/models"
	"github.com/fgeck/sevenzip-backup/internal/services/trash"
	"github.com/rs/zerolog"
)

const (
	// DefaultBinary is the engine looked up on PATH when none is configured.
	DefaultBinary = "7z"
	// VolumeThreshold is the input size from which archives are split.
	VolumeThreshold int64 = 4290772992
	volumeFlag            = "-v4092m"
	outputTail            = 20
)

// Service defines the interface for archive operations.
type Service interface {
	InputSize(paths []string) int64
	Archive(ctx context.Context, job models.ArchiveJob, progress models.ProgressCallback) (*models.ArchiveResult, error)
	ArchiveWithPreTar(ctx context.Context, job models.ArchiveJob, excludes []string, progress models.ProgressCallback) (*models.ArchiveResult, error)
}

// Impl implements the Service interface.
type Impl struct {
	executor CommandExecutor
	deleter  trash.Deleter
	binary   string
	logger   zerolog.Logger
}

// New creates a new archive service running binary.
func New(logger zerolog.Logger, binary string, deleter trash.Deleter) *Impl {
	return NewWithExecutor(logger, binary, deleter, &DefaultExecutor{})
}

// NewWithExecutor creates a new archive service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, binary string, deleter trash.Deleter, executor CommandExecutor) *Impl {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Impl{
		executor: executor,
		deleter:  deleter,
		binary:   binary,
		logger:   logger,
	}
}

// InputSize sums the sizes of all regular files below paths. Unreadable
// entries are skipped.
func (s *Impl) InputSize(paths []string) int64 {
	var total int64
	for _, root := range paths {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				s.logger.Debug().Err(err).Str("path", path).Msg("skipping entry while sizing input")
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				s.logger.Debug().Err(err).Str("path", path).Msg("skipping entry while sizing input")
				return nil
			}
			total += info.Size()
			return nil
		})
	}
	return total
}

// Archive compresses the job's input paths into a 7z archive.
func (s *Impl) Archive(ctx context.Context, job models.ArchiveJob, progress models.ProgressCallback) (*models.ArchiveResult, error) {
	if err := checkJob(job); err != nil {
		return nil, err
	}

	start := time.Now()
	split := s.shouldSplit(job)
	args := buildArchiveArgs(job, split)

	s.logger.Info().
		Str("target", job.TargetName).
		Strs("inputs", job.InputPaths).
		Str("archive", job.OutputPath()).
		Bool("split", split).
		Bool("encrypted", job.Password != "").
		Msg("compressing")

	before, after, err := s.run(ctx, job, models.StageCompress, args, progress)
	if err != nil {
		return nil, err
	}

	result := &models.ArchiveResult{
		OutputPath:  job.OutputPath(),
		BeforeBytes: before,
		AfterBytes:  after,
		Split:       split,
		Duration:    time.Since(start),
	}

	s.logger.Info().
		Str("target", job.TargetName).
		Str("before", humanize.IBytes(uint64(before))).
		Str("after", humanize.IBytes(uint64(after))).
		Dur("duration", result.Duration).
		Msg("archive completed")

	return result, nil
}

// ArchiveWithPreTar bundles the inputs into an uncompressed tar next to the
// archive, compresses the tar with splitting forced, then moves the tar to
// the trash. The result pairs the tar stage input size with the final
// archive size.
func (s *Impl) ArchiveWithPreTar(ctx context.Context, job models.ArchiveJob, excludes []string, progress models.ProgressCallback) (*models.ArchiveResult, error) {
	if err := checkJob(job); err != nil {
		return nil, err
	}

	start := time.Now()
	tarPath := filepath.Join(job.OutputDir, strings.TrimSuffix(job.Filename, ".7z")+".tar")

	args := []string{"a", "-ttar", "-bsp1"}
	for _, ex := range excludes {
		args = append(args, "-xr!"+ex)
	}
	args = append(args, tarPath)
	args = append(args, job.InputPaths...)

	s.logger.Info().
		Str("target", job.TargetName).
		Str("tar", tarPath).
		Strs("excludes", excludes).
		Msg("creating tarball")

	tarBefore, tarAfter, err := s.run(ctx, job, models.StageTar, args, progress)
	defer s.discard(tarPath)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("target", job.TargetName).
		Str("data", humanize.IBytes(uint64(tarBefore))).
		Str("tarball", humanize.IBytes(uint64(tarAfter))).
		Msg("tarball created")

	compress := job
	compress.InputPaths = []string{tarPath}
	compress.FullPath = false
	compress.Split = true
	compress.SplitForce = true
	compress.TarBefore = false

	res, err := s.Archive(ctx, compress, progress)
	if err != nil {
		return nil, err
	}

	return &models.ArchiveResult{
		OutputPath:  res.OutputPath,
		BeforeBytes: tarBefore,
		AfterBytes:  res.AfterBytes,
		Split:       res.Split,
		Duration:    time.Since(start),
	}, nil
}

func (s *Impl) discard(path string) {
	if _, err := os.Lstat(path); err != nil {
		return
	}
	if err := s.deleter.Delete(path); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("failed to discard intermediate tarball")
	}
}

// shouldSplit decides whether the archive is written in volumes. Multiple
// inputs always split since they cannot be sized as one stream.
func (s *Impl) shouldSplit(job models.ArchiveJob) bool {
	if !job.Split && !job.SplitForce {
		return false
	}
	if job.SplitForce {
		s.logger.Debug().Str("target", job.TargetName).Msg("splitting forced")
		return true
	}
	if len(job.InputPaths) > 1 {
		s.logger.Debug().Str("target", job.TargetName).Int("inputs", len(job.InputPaths)).Msg("multiple inputs, splitting")
		return true
	}
	size := s.InputSize(job.InputPaths)
	split := size >= VolumeThreshold
	s.logger.Debug().
		Str("target", job.TargetName).
		Str("size", humanize.IBytes(uint64(size))).
		Bool("split", split).
		Msg("checked input size against volume limit")
	return split
}

// run invokes the engine and returns the two byte counts it reported.
func (s *Impl) run(ctx context.Context, job models.ArchiveJob, stage models.ProgressStage, args []string, progress models.ProgressCallback) (int64, int64, error) {
	parser := NewOutputParser()
	var tail []string

	onLine := func(raw string) {
		text := strings.TrimSpace(raw)
		if text == "" {
			return
		}
		s.logger.Debug().Str("target", job.TargetName).Str("stage", string(stage)).Msg(text)
		if len(tail) == outputTail {
			tail = tail[1:]
		}
		tail = append(tail, text)

		line, advanced := parser.Feed(text)
		switch {
		case advanced && progress != nil:
			progress(models.Progress{Target: job.TargetName, Stage: stage, Percent: line.Percent})
		case line.Kind == LineInputSize:
			s.logger.Info().Str("target", job.TargetName).Str("stage", string(stage)).Msgf("data to process: %s", line.Detail)
		case line.Kind == LineArchiveSize:
			s.logger.Info().Str("target", job.TargetName).Str("stage", string(stage)).Msgf("archive size: %s", line.Detail)
		}
	}

	err := s.executor.ExecuteStreaming(ctx, onLine, s.binary, args...)
	if err == nil {
		var before, after int64
		before, after, err = parser.Sizes()
		if err == nil {
			return before, after, nil
		}
	}

	archiveErr := &ArchiveError{Target: job.TargetName, Stage: stage, Err: err, Output: tail}
	s.logger.Debug().
		Err(err).
		Str("target", job.TargetName).
		Str("stage", string(stage)).
		Str("binary", s.binary).
		Strs("args", redact(args)).
		Int("last_percent", parser.Percent()).
		Strs("output", tail).
		Msg("engine failed")
	return 0, 0, archiveErr
}

func checkJob(job models.ArchiveJob) error {
	if job.Filename == "" {
		return fmt.Errorf("%w: archive filename is required", ErrInvalidJob)
	}
	if len(job.InputPaths) == 0 {
		return fmt.Errorf("%w: no input paths for %s", ErrNotFound, job.TargetName)
	}
	for _, p := range job.InputPaths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: input path %s", ErrNotFound, p)
			}
			return fmt.Errorf("checking input path %s: %w", p, err)
		}
	}
	info, err := os.Stat(job.OutputDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: output directory %s", ErrNotFound, job.OutputDir)
	}
	return nil
}

func buildArchiveArgs(job models.ArchiveJob, split bool) []string {
	dict := job.DictSize
	if dict == "" {
		dict = "192m"
	}
	args := []string{
		"a", "-t7z", "-m0=lzma2",
		"-md=" + dict,
		"-mx=" + strconv.Itoa(job.MxLevel),
		"-bsp1",
	}
	if split {
		args = append(args, volumeFlag)
	}
	if job.Password != "" {
		args = append(args, "-mhe=on", "-p"+job.Password)
	}
	if job.FullPath {
		args = append(args, "-spf2")
	}
	args = append(args, job.OutputPath())
	return append(args, job.InputPaths...)
}

// redact hides the password flag for logging.
func redact(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.HasPrefix(a, "-p") && len(a) > 2 {
			a = "-p***"
		}
		out[i] = a
	}
	return out
}
