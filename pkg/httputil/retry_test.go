package httputil

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryRetriesWrappedErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return &RetryableError{Err: errors.New("registry timeout")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnPlainError(t *testing.T) {
	plain := errors.New("package not found")
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return plain
	})
	if !errors.Is(err, plain) {
		t.Errorf("Retry() error = %v, want %v", err, plain)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryReturnsLastError(t *testing.T) {
	err := Retry(context.Background(), 2, time.Millisecond, func() error {
		return &RetryableError{Err: errors.New("still down")}
	})
	if err == nil || err.Error() != "still down" {
		t.Errorf("Retry() error = %v, want still down", err)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 3, time.Minute, func() error {
		return &RetryableError{Err: errors.New("registry timeout")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() error = %v, want context.Canceled", err)
	}
}

func TestRetryableErrorUnwraps(t *testing.T) {
	inner := errors.New("connection reset")
	wrapped := &RetryableError{Err: inner}
	if !errors.Is(wrapped, inner) {
		t.Error("RetryableError should unwrap to the inner error")
	}
	if wrapped.Error() != inner.Error() {
		t.Errorf("Error() = %q, want %q", wrapped.Error(), inner.Error())
	}
}
