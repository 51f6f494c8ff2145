// Package trash provides reversible deletion of stale archives and scratch files.
package trash

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Bios-Marcel/wastebasket/v2"
	"github.com/rs/zerolog"
)

// Deleter removes a file or directory, ideally in a way that can be undone.
type Deleter interface {
	Delete(path string) error
}

// Func moves paths into the platform trash.
type Func func(paths ...string) error

// System moves files into the desktop trash: the freedesktop.org home trash
// on Linux, the Recycle Bin on Windows.
type System struct {
	trash  Func
	logger zerolog.Logger
}

// NewSystem creates a deleter backed by the platform trash.
func NewSystem(logger zerolog.Logger) *System {
	return NewSystemWithFunc(logger, wastebasket.Trash)
}

// NewSystemWithFunc creates a deleter with a custom trash function (for testing).
func NewSystemWithFunc(logger zerolog.Logger, trash Func) *System {
	return &System{trash: trash, logger: logger}
}

// Delete moves path into the trash. When the platform trash refuses the file
// (no trash on that filesystem, cross-device move) it is quarantined in a
// .trash folder next to itself instead.
func (t *System) Delete(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	if _, err := os.Lstat(abs); err != nil {
		return fmt.Errorf("trashing %s: %w", path, err)
	}

	if err := t.trash(abs); err != nil {
		t.logger.Debug().Err(err).Str("path", abs).Msg("cannot move into trash, quarantining beside the file")
		return NewQuarantine(filepath.Join(filepath.Dir(abs), ".trash")).Delete(abs)
	}

	t.logger.Debug().Str("path", abs).Msg("moved to trash")
	return nil
}

// Quarantine moves files into a plain directory.
type Quarantine struct {
	Dir string
}

// NewQuarantine creates a deleter that moves files into dir.
func NewQuarantine(dir string) *Quarantine {
	return &Quarantine{Dir: dir}
}

// Delete moves path into the quarantine directory under a free name.
func (q *Quarantine) Delete(path string) error {
	if _, err := os.Lstat(path); err != nil {
		return fmt.Errorf("quarantining %s: %w", path, err)
	}
	if err := os.MkdirAll(q.Dir, 0o700); err != nil {
		return fmt.Errorf("creating quarantine directory: %w", err)
	}

	base := filepath.Base(path)
	for i := 0; ; i++ {
		dest := filepath.Join(q.Dir, candidate(base, i))
		if _, err := os.Lstat(dest); err == nil {
			continue
		}
		if err := os.Rename(path, dest); err != nil {
			return fmt.Errorf("quarantining %s: %w", path, err)
		}
		return nil
	}
}

// Hard removes files permanently.
type Hard struct{}

// Delete removes path and everything below it.
func (Hard) Delete(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// candidate returns base for i == 0 and "stem.i.ext" afterwards.
func candidate(base string, i int) string {
	if i == 0 {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return stem + "." + strconv.Itoa(i) + ext
}
