package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrUpstream   = errors.New("upstream error")
	ErrStorage    = errors.New("storage error")
)

// ValidationError returns an error wrapping ErrValidation
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// StorageError wraps a persistence failure
func StorageError(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", ErrStorage, op, err)
}

// UpstreamError wraps a completion provider failure
func UpstreamError(err error) error {
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}
