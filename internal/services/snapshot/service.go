// Package snapshot collects an inventory of the host configuration into a
// scratch directory that is archived by the config snapshot target.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fgeck/sevenzip-backup/internal/models"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/crypto/ssh"
)

// Inventory file names.
const (
	PackagesFile     = "installed_packages.txt"
	PythonFile       = "python_packages.txt"
	VSCodeFile       = "vscode_extensions.txt"
	DriversFile      = "drivers.txt"
	SystemInfoFile   = "systeminfo.txt"
	PathFile         = "path.txt"
	SSHDir           = ".ssh"
	FingerprintsFile = "ssh_fingerprints.txt"
	VideosTreeFile   = "videos_tree.txt"
)

// Service defines the interface for the snapshot collector.
type Service interface {
	Collect(ctx context.Context, outDir string) *models.SnapshotResult
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	ExecuteToFile(ctx context.Context, outputPath string, name string, args ...string) error
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// ExecuteToFile runs a command and writes its stdout to outputPath.
func (e *DefaultExecutor) ExecuteToFile(ctx context.Context, outputPath string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	output, err := os.Create(outputPath) //nolint:gosec // outputPath is controlled by caller
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = output.Close() }()

	cmd.Stdout = output

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}

	return nil
}

// Options points the collector at the user folders it inventories.
type Options struct {
	HomeDir   string
	VideosDir string
}

// Impl implements the snapshot Service interface.
type Impl struct {
	executor CommandExecutor
	opts     Options
	logger   zerolog.Logger
}

// New creates a new snapshot collector.
func New(logger zerolog.Logger, opts Options) *Impl {
	return NewWithExecutor(logger, opts, &DefaultExecutor{})
}

// NewWithExecutor creates a new snapshot collector with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, opts Options, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		opts:     opts,
		logger:   logger,
	}
}

type category struct {
	file    string
	collect func(ctx context.Context, path string) error
}

// command is an external program whose stdout becomes an inventory file.
type command struct {
	name string
	args []string
}

func (s *Impl) categories() []category {
	return []category{
		{PackagesFile, s.commandAlternatives(
			command{"dpkg-query", []string{"-W", "-f=${Package} ${Version}\n"}},
			command{"rpm", []string{"-qa"}},
			command{"pacman", []string{"-Q"}},
		)},
		{PythonFile, s.commandAlternatives(command{"python3", []string{"-m", "pip", "freeze"}})},
		{VSCodeFile, s.commandAlternatives(command{"code", []string{"--list-extensions", "--show-versions"}})},
		{DriversFile, s.commandAlternatives(command{"lsmod", nil})},
		{SystemInfoFile, s.commandAlternatives(command{"uname", []string{"-a"}})},
		{PathFile, func(_ context.Context, path string) error { return savePathEnv(path) }},
		{SSHDir, func(_ context.Context, path string) error { return s.saveSSH(path) }},
		{VideosTreeFile, func(_ context.Context, path string) error { return s.saveVideosTree(path) }},
	}
}

// Collect writes every inventory category into outDir. Failures are logged
// and recorded in the result; they never abort the collection.
func (s *Impl) Collect(ctx context.Context, outDir string) *models.SnapshotResult {
	s.logger.Info().Str("output", outDir).Msg("collecting system config snapshot")

	start := time.Now()
	result := &models.SnapshotResult{
		OutputDir: outDir,
		Failed:    map[string]error{},
	}

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		result.Failed[outDir] = fmt.Errorf("failed to create snapshot directory: %w", err)
		s.logger.Error().Err(err).Str("output", outDir).Msg("cannot create snapshot directory")
		return result
	}

	for _, c := range s.categories() {
		path := filepath.Join(outDir, c.file)
		if err := c.collect(ctx, path); err != nil {
			s.logger.Warn().Err(err).Str("file", c.file).Msg("failed to save snapshot category")
			result.Failed[c.file] = err
			continue
		}
		s.logger.Debug().Str("file", c.file).Msg("snapshot category saved")
		result.Saved = append(result.Saved, c.file)
	}

	s.logger.Info().
		Int("saved", len(result.Saved)).
		Int("failed", len(result.Failed)).
		Dur("duration", time.Since(start)).
		Msg("system config snapshot completed")

	return result
}

// commandAlternatives runs the first command that succeeds.
func (s *Impl) commandAlternatives(cmds ...command) func(ctx context.Context, path string) error {
	return func(ctx context.Context, path string) error {
		var errs []error
		for _, c := range cmds {
			err := s.executor.ExecuteToFile(ctx, path, c.name, c.args...)
			if err == nil {
				return nil
			}
			_ = os.Remove(path)
			errs = append(errs, err)
		}
		return multierr.Combine(errs...)
	}
}

func savePathEnv(path string) error {
	entries := filepath.SplitList(os.Getenv("PATH"))
	return os.WriteFile(path, []byte(strings.Join(entries, "\n")+"\n"), 0o600)
}

// saveSSH copies the ssh directory and writes the fingerprints of its public keys.
func (s *Impl) saveSSH(dest string) error {
	if s.opts.HomeDir == "" {
		return errors.New("home directory unknown")
	}
	src := filepath.Join(s.opts.HomeDir, ".ssh")
	if err := copyTree(src, dest); err != nil {
		return err
	}

	matches, err := filepath.Glob(filepath.Join(src, "*.pub"))
	if err != nil {
		return err
	}
	sort.Strings(matches)

	var b strings.Builder
	for _, m := range matches {
		data, err := os.ReadFile(m) //nolint:gosec // inside ~/.ssh
		if err != nil {
			s.logger.Debug().Err(err).Str("key", m).Msg("cannot read public key")
			continue
		}
		pub, comment, _, _, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			s.logger.Debug().Err(err).Str("key", m).Msg("cannot parse public key")
			continue
		}
		fmt.Fprintf(&b, "%s %s %s %s\n", filepath.Base(m), pub.Type(), ssh.FingerprintSHA256(pub), comment)
	}

	return os.WriteFile(filepath.Join(filepath.Dir(dest), FingerprintsFile), []byte(b.String()), 0o600)
}

// saveVideosTree lists every file below the videos folder.
func (s *Impl) saveVideosTree(path string) error {
	if s.opts.VideosDir == "" {
		return errors.New("videos directory unknown")
	}

	var b strings.Builder
	err := filepath.WalkDir(s.opts.VideosDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.opts.VideosDir, p)
		if err != nil {
			return err
		}
		b.WriteString(filepath.ToSlash(rel))
		b.WriteByte('\n')
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking videos directory: %w", err)
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}

// copyTree copies regular files and directories from src to dest.
func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o700)
		case d.Type().IsRegular():
			return copyFile(p, target)
		default:
			return nil
		}
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src) //nolint:gosec // walked path
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // inside scratch dir
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
