// Package errors defines the error taxonomy shared across the engine.
// Callers classify failures with errors.Is against the sentinels below to
// decide between retrying, degrading a tier, or aborting the operation.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable marks connection or timeout failures against the
	// persistent store or the shared cache. Recoverable; callers may retry
	// with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrStoreOperationFailed marks a single lookup or delete that failed
	// while the store itself is reachable. Recorded in stats, does not abort
	// a run.
	ErrStoreOperationFailed = errors.New("store operation failed")

	// ErrInvalidConfiguration marks bad caller input (unknown strategy,
	// threshold out of range). Fatal at call time, rejected before any store
	// access.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrSnapshotCorrupt marks a Bloom-filter snapshot that fails to
	// deserialize. Recoverable by building a fresh filter and rehydrating
	// from the store.
	ErrSnapshotCorrupt = errors.New("snapshot corrupt")
)

// AppError attaches a sentinel and a human-readable message to an underlying
// cause.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsRetryable reports whether the error represents a transient condition the
// caller may retry with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsFatal reports whether the error must be surfaced to the caller before any
// work is attempted.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}
