package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestAppErrorWrapsSentinel(t *testing.T) {
	err := Newf(ErrStoreUnavailable, "connecting to %s", "localhost:5432")
	if !stderrors.Is(err, ErrStoreUnavailable) {
		t.Error("errors.Is lost the sentinel")
	}
	want := "store unavailable: connecting to localhost:5432"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	// Sentinel survives another wrapping layer.
	wrapped := fmt.Errorf("outer: %w", err)
	if !stderrors.Is(wrapped, ErrStoreUnavailable) {
		t.Error("sentinel lost through fmt.Errorf wrapping")
	}
}

func TestClassification(t *testing.T) {
	if !IsRetryable(New(ErrStoreUnavailable, "down")) {
		t.Error("store unavailable should be retryable")
	}
	if IsRetryable(New(ErrInvalidConfiguration, "bad")) {
		t.Error("invalid configuration should not be retryable")
	}
	if !IsFatal(New(ErrInvalidConfiguration, "bad")) {
		t.Error("invalid configuration should be fatal")
	}
	if IsFatal(New(ErrSnapshotCorrupt, "garbled")) {
		t.Error("snapshot corruption is recoverable, not fatal")
	}
}
