// Package runner orchestrates a backup run over the configured targets.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/sevenzip-backup/internal/config"
	"github.com/fgeck/sevenzip-backup/internal/models"
	"github.com/fgeck/sevenzip-backup/internal/services/manifest"
	"github.com/fgeck/sevenzip-backup/internal/services/sevenzip"
	"github.com/fgeck/sevenzip-backup/internal/services/snapshot"
	"github.com/fgeck/sevenzip-backup/internal/services/telegram"
	"github.com/fgeck/sevenzip-backup/internal/services/trash"
	"github.com/fgeck/sevenzip-backup/internal/services/wol"
	"github.com/rs/zerolog"
)

var (
	// ErrRecursiveBackup is returned when the output folder lies inside an enabled target.
	ErrRecursiveBackup = errors.New("output path is inside a backed up target")
	// ErrNoTargets is returned when no target is enabled.
	ErrNoTargets = errors.New("no backup targets enabled")
	// ErrNoPath is returned for a target that needs a path but has none.
	ErrNoPath = errors.New("target has no path")
)

// shortPasswordLength is the length up to which a password draws a warning.
const shortPasswordLength = 12

// MediaServerExcludes are the media server folders left out of its tarball.
var MediaServerExcludes = []string{"Cache*", "Updates", "Crash*"}

// Service defines the interface for the backup runner.
type Service interface {
	Run(ctx context.Context, req models.RunRequest) (*models.RunSummary, error)
}

// ManifestWriter writes the integrity manifest of the output folder.
type ManifestWriter interface {
	Write(dir string) (*models.RunManifest, error)
	WriteEncryptedMarker(dir string) error
}

// Identity names the machine and account used in archive and folder names.
type Identity struct {
	Host string
	User string
}

// CurrentIdentity returns the host and user running the process.
func CurrentIdentity() Identity {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	host = strings.ToUpper(strings.SplitN(host, ".", 2)[0])

	name := ""
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	if name == "" {
		name = os.Getenv("USER")
	}
	if name == "" {
		name = os.Getenv("USERNAME")
	}
	if name == "" {
		name = "unknown"
	}
	// strip a DOMAIN\ prefix
	if i := strings.LastIndex(name, `\`); i >= 0 {
		name = name[i+1:]
	}
	return Identity{Host: host, User: name}
}

// Impl implements the runner Service interface.
type Impl struct {
	archiver    sevenzip.Service
	snapshotSvc snapshot.Service
	manifestSvc ManifestWriter
	deleter     trash.Deleter
	wolSvc      wol.Service
	telegramSvc telegram.Service
	identity    Identity
	now         func() time.Time
	logger      zerolog.Logger
}

// New creates a new runner service.
func New(logger zerolog.Logger, binary string, deleter trash.Deleter, snapshotOpts snapshot.Options) *Impl {
	return &Impl{
		archiver:    sevenzip.New(logger, binary, deleter),
		snapshotSvc: snapshot.New(logger, snapshotOpts),
		manifestSvc: manifest.New(logger),
		deleter:     deleter,
		wolSvc:      wol.New(logger),
		telegramSvc: telegram.New(logger),
		identity:    CurrentIdentity(),
		now:         time.Now,
		logger:      logger,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	archiver sevenzip.Service,
	snapshotSvc snapshot.Service,
	manifestSvc ManifestWriter,
	deleter trash.Deleter,
	wolSvc wol.Service,
	telegramSvc telegram.Service,
	identity Identity,
	now func() time.Time,
) *Impl {
	return &Impl{
		archiver:    archiver,
		snapshotSvc: snapshotSvc,
		manifestSvc: manifestSvc,
		deleter:     deleter,
		wolSvc:      wolSvc,
		telegramSvc: telegramSvc,
		identity:    identity,
		now:         now,
		logger:      logger,
	}
}

// FolderName returns the per-run output folder name.
func (s *Impl) FolderName() string {
	return fmt.Sprintf("%s_%s_%s", s.identity.Host, s.identity.User, s.now().Format("2006-01-02"))
}

// Filename returns the archive name of a target.
func (s *Impl) Filename(targetName string) string {
	return fmt.Sprintf("%s_%s.7z", s.FolderName(), strings.ReplaceAll(targetName, " ", ""))
}

// PrepareOutputDir creates the per-run folder below root and reports
// whether it had to be created.
func (s *Impl) PrepareOutputDir(root string) (string, bool, error) {
	path := filepath.Join(root, s.FolderName())
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return "", false, fmt.Errorf("output path %s exists and is not a directory", path)
		}
		return path, false, nil
	}
	if err := os.Mkdir(path, 0o750); err != nil {
		return "", false, fmt.Errorf("failed to create output directory: %w", err)
	}
	return path, true, nil
}

// CheckRecursiveLoop reports whether outputPath is one of, or lies below,
// the paths of the enabled targets.
func CheckRecursiveLoop(outputPath string, targets models.TargetConfig) bool {
	out, err := filepath.Abs(outputPath)
	if err != nil {
		out = filepath.Clean(outputPath)
	}
	for _, e := range targets.Enabled() {
		for _, p := range e.Item.Path.Paths() {
			src, err := filepath.Abs(p)
			if err != nil {
				src = filepath.Clean(p)
			}
			rel, err := filepath.Rel(src, out)
			if err != nil {
				continue
			}
			if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return true
			}
		}
	}
	return false
}

// RemoveExistingArchive moves every file in dir whose name starts with
// prefix to the trash.
func (s *Impl) RemoveExistingArchive(prefix, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir, err)
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		s.logger.Info().Str("file", path).Msg("moving stale archive to trash")
		if err := s.deleter.Delete(path); err != nil {
			return fmt.Errorf("removing stale archive %s: %w", path, err)
		}
	}
	return nil
}

// Run executes the backup of every enabled target.
//
//nolint:gocognit // sequential run steps
func (s *Impl) Run(ctx context.Context, req models.RunRequest) (*models.RunSummary, error) {
	summary := &models.RunSummary{
		StartTime: s.now(),
		Encrypted: req.Password != "",
	}
	var runErr error

	s.logger.Info().
		Str("output_root", req.OutputPath).
		Int("targets", len(req.Targets.Enabled())).
		Bool("encrypted", summary.Encrypted).
		Msg("starting backup run")

	defer func() {
		summary.Duration = s.now().Sub(summary.StartTime)
		if req.Hooks.Telegram != nil {
			s.sendNotification(ctx, *req.Hooks.Telegram, summary, runErr)
		}
	}()

	if req.Hooks.WOL != nil {
		if err := s.runWOL(ctx, *req.Hooks.WOL, req.OutputPath); err != nil {
			runErr = err
			return summary, err
		}
	}

	enabled := req.Targets.Enabled()
	if len(enabled) == 0 {
		runErr = ErrNoTargets
		return summary, runErr
	}

	outDir := filepath.Join(req.OutputPath, s.FolderName())
	if CheckRecursiveLoop(outDir, req.Targets) {
		runErr = fmt.Errorf("%w: %s", ErrRecursiveBackup, outDir)
		return summary, runErr
	}

	outDir, created, err := s.PrepareOutputDir(req.OutputPath)
	if err != nil {
		runErr = err
		return summary, err
	}
	summary.OutputPath = outDir
	summary.Existed = !created
	if req.OnOutputDir != nil {
		req.OnOutputDir(outDir)
	}
	if !created {
		s.logger.Warn().Str("output", outDir).Msg("output folder already exists, existing archives of the enabled targets will be replaced")
	}
	if n := len(req.Password); n > 0 && n <= shortPasswordLength {
		s.logger.Warn().Msg("the given password is short, consider a longer password")
	}

	progress := req.Progress
	if req.Quiet {
		progress = nil
	}

	for _, entry := range enabled {
		if err := ctx.Err(); err != nil {
			runErr = err
			return summary, err
		}
		result := s.runTarget(ctx, entry, outDir, req.Password, progress)
		summary.Targets = append(summary.Targets, result)
	}

	m, err := s.manifestSvc.Write(outDir)
	if err != nil {
		runErr = fmt.Errorf("failed to write manifest: %w", err)
		return summary, runErr
	}
	summary.Manifest = m

	if summary.Encrypted {
		if err := s.manifestSvc.WriteEncryptedMarker(outDir); err != nil {
			s.logger.Warn().Err(err).Msg("failed to write encrypted marker")
		}
	}

	summary.OutputBytes = s.archiver.InputSize([]string{outDir})
	before, after := summary.TotalBytes()
	s.logger.Info().
		Str("output", outDir).
		Int("succeeded", len(summary.Targets)-len(summary.Failed())).
		Int("failed", len(summary.Failed())).
		Str("data", humanize.IBytes(uint64(before))).
		Str("archived", humanize.IBytes(uint64(after))).
		Str("output_size", humanize.IBytes(uint64(summary.OutputBytes))).
		Dur("duration", s.now().Sub(summary.StartTime)).
		Msg("backup run completed")

	return summary, nil
}

// runTarget backs up one target. Errors are recorded in the result and
// never abort the run.
func (s *Impl) runTarget(ctx context.Context, entry models.TargetEntry, outDir, password string, progress models.ProgressCallback) models.TargetResult {
	start := s.now()
	item := entry.Item
	result := models.TargetResult{
		ID:       entry.ID,
		Name:     item.Name,
		Filename: s.Filename(item.Name),
	}

	s.logger.Info().Str("target", item.Name).Str("id", entry.ID).Msg("backup starting")

	job := models.ArchiveJob{
		TargetID:   entry.ID,
		TargetName: item.Name,
		OutputDir:  outDir,
		Filename:   result.Filename,
		Password:   password,
		DictSize:   item.DictSize,
		MxLevel:    item.MxLevel,
		FullPath:   item.FullPath,
		Split:      true,
	}

	archive, err := s.dispatch(ctx, entry, job, progress)
	result.Duration = s.now().Sub(start)

	switch {
	case err != nil:
		result.Status = models.TargetFailed
		result.Error = err
		s.logger.Error().Err(err).Str("target", item.Name).Msg("backup failed, continuing with next target")
	case archive == nil:
		result.Status = models.TargetSkipped
		s.logger.Warn().Str("target", item.Name).Str("id", entry.ID).Msg("no handler for special target, skipped")
	default:
		result.Status = models.TargetSucceeded
		result.BeforeBytes = archive.BeforeBytes
		result.AfterBytes = archive.AfterBytes
		s.logger.Info().
			Str("target", item.Name).
			Str("file", result.Filename).
			Dur("duration", result.Duration).
			Msg("backup finished")
	}
	return result
}

// dispatch runs the handler matching the target. A nil result without error
// means the target has no handler.
func (s *Impl) dispatch(ctx context.Context, entry models.TargetEntry, job models.ArchiveJob, progress models.ProgressCallback) (*models.ArchiveResult, error) {
	item := entry.Item
	stale := strings.TrimSuffix(job.Filename, ".7z") + "."

	if item.Type == models.ItemTypeFolder {
		if item.Path.IsAbsent() {
			return nil, fmt.Errorf("%w: %s", ErrNoPath, item.Name)
		}
		if err := s.RemoveExistingArchive(stale, job.OutputDir); err != nil {
			return nil, err
		}
		job.InputPaths = item.Path.Paths()
		return s.archiver.Archive(ctx, job, progress)
	}

	switch entry.ID {
	case config.ConfigSnapshotID:
		if err := s.RemoveExistingArchive(stale, job.OutputDir); err != nil {
			return nil, err
		}
		return s.archiveSnapshot(ctx, job, progress)
	case config.MediaServerID:
		if item.Path.IsAbsent() {
			return nil, fmt.Errorf("%w: %s", ErrNoPath, item.Name)
		}
		if err := s.RemoveExistingArchive(stale, job.OutputDir); err != nil {
			return nil, err
		}
		job.InputPaths = item.Path.Paths()
		job.TarBefore = true
		return s.archiver.ArchiveWithPreTar(ctx, job, MediaServerExcludes, progress)
	default:
		return nil, nil
	}
}

// archiveSnapshot collects the system config into a scratch folder, archives
// it and moves the folder to the trash.
func (s *Impl) archiveSnapshot(ctx context.Context, job models.ArchiveJob, progress models.ProgressCallback) (*models.ArchiveResult, error) {
	scratch := filepath.Join(job.OutputDir, "config")
	if err := os.MkdirAll(scratch, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	defer func() {
		if err := s.deleter.Delete(scratch); err != nil {
			s.logger.Warn().Err(err).Str("path", scratch).Msg("failed to discard snapshot directory")
		}
	}()

	snap := s.snapshotSvc.Collect(ctx, scratch)
	for file, err := range snap.Failed {
		s.logger.Debug().Err(err).Str("file", file).Msg("snapshot category missing from archive")
	}

	job.InputPaths = []string{scratch}
	return s.archiver.Archive(ctx, job, progress)
}

func (s *Impl) runWOL(ctx context.Context, cfg models.WOLConfig, outputRoot string) error {
	if cfg.WaitPath == "" {
		cfg.WaitPath = outputRoot
	}

	s.logger.Info().
		Str("mac", cfg.MACAddress).
		Str("wait_path", cfg.WaitPath).
		Msg("waking storage host")

	result, err := s.wolSvc.Wake(ctx, cfg)
	if err != nil {
		return fmt.Errorf("WOL failed: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("WOL failed: %w", result.Error)
	}
	if !result.TargetReady {
		return fmt.Errorf("storage did not become ready after WOL")
	}

	s.logger.Info().
		Bool("packet_sent", result.PacketSent).
		Dur("wait_duration", result.WaitDuration).
		Msg("WOL completed")

	return nil
}

func (s *Impl) sendNotification(ctx context.Context, cfg models.TelegramConfig, summary *models.RunSummary, runErr error) {
	before, after := summary.TotalBytes()
	msg := models.TelegramMessage{
		Success:     runErr == nil && len(summary.Failed()) == 0,
		Host:        s.identity.Host,
		OutputPath:  summary.OutputPath,
		StartTime:   summary.StartTime,
		Duration:    summary.Duration,
		Encrypted:   summary.Encrypted,
		Targets:     summary.Targets,
		BeforeBytes: before,
		AfterBytes:  after,
	}
	if runErr != nil {
		msg.ErrorMessage = runErr.Error()
	}

	// the run context may already be cancelled
	notifyCtx := context.WithoutCancel(ctx)

	result, err := s.telegramSvc.SendNotification(notifyCtx, cfg, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	s.logger.Info().Msg("Telegram notification sent")
}
