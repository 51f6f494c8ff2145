package sevenzip

import (
	"errors"
	"fmt"

	"github.com/fgeck/sevenzip-backup/internal/models"
)

var (
	// ErrInvalidJob is returned when an archive job is missing required fields.
	ErrInvalidJob = errors.New("invalid archive job")
	// ErrNotFound is returned when an input path or the output directory does not exist.
	ErrNotFound = errors.New("not found")
	// ErrArchiveFailure is returned when the engine exits abnormally or its
	// output does not contain both byte counts.
	ErrArchiveFailure = errors.New("archive failure")
)

// ArchiveError describes a failed engine invocation.
type ArchiveError struct {
	Target string
	Stage  models.ProgressStage
	Err    error
	Output []string // last lines printed by the engine
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("%s of %s failed: %v", e.Stage, e.Target, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrArchiveFailure) true for every ArchiveError.
func (e *ArchiveError) Is(target error) bool {
	return target == ErrArchiveFailure
}
