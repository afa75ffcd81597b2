package dream

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks a run that was rejected before any compute
	ErrConfig = errors.New("invalid run config")
	// ErrNumericalDivergence marks an octave aborted on a non-finite value
	ErrNumericalDivergence = errors.New("numerical divergence")
	// ErrResource marks a missing or failing extractor, weights file or device
	ErrResource = errors.New("resource unavailable")
	// ErrSequenceConsumed is yielded when a snapshot sequence is ranged over twice
	ErrSequenceConsumed = errors.New("snapshot sequence already consumed")
)

// ConfigError reports which RunConfig field (or input) was rejected
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrConfig, e.Field, e.Err)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }
func (e *ConfigError) Unwrap() error        { return e.Err }

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// DivergenceError records where an octave produced a non-finite value
type DivergenceError struct {
	Octave    int
	Iteration int
	Quantity  string // "objective", "gradient" or "image"
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("%v: non-finite %s at octave %d iteration %d", ErrNumericalDivergence, e.Quantity, e.Octave, e.Iteration)
}

func (e *DivergenceError) Unwrap() error { return ErrNumericalDivergence }

// ResourceError wraps a failure of something the run depends on
type ResourceError struct {
	Resource string
	Err      error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrResource, e.Resource, e.Err)
}

func (e *ResourceError) Is(target error) bool { return target == ErrResource }
func (e *ResourceError) Unwrap() error        { return e.Err }
