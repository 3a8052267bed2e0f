package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for missing or malformed input.
	// It is always raised before any I/O happens.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when a memory or session does not exist.
	ErrNotFound = errors.New("memory not found")
)

// StorageError wraps a failure of the durable store with the operation that
// hit it. It is the only error class that escapes from I/O paths.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("memory store: %v", e.Err)
	}
	return fmt.Sprintf("memory store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// WrapStorage wraps err as a *StorageError. ErrNotFound passes through
// untouched so callers can keep using errors.Is on it.
func WrapStorage(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func invalidArg(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidArgument, field, reason)
}
