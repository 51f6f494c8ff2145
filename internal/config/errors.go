package config

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	// ErrInvalidArgument is returned by model mutators for bad input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidFormat is returned when a config file has an unsupported extension.
	ErrInvalidFormat = errors.New("invalid config format")
	// ErrIsADirectory is returned when a config file path names a directory.
	ErrIsADirectory = errors.New("path is a directory")
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("config validation failed")
)

// ValidationError carries every problem found while validating one config section.
type ValidationError struct {
	Section string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s config: %v", e.Section, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Problems returns the individual problems.
func (e *ValidationError) Problems() []string {
	errs := multierr.Errors(e.Err)
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
