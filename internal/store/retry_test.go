package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
)

type codedError struct{ code int }

func (e *codedError) Error() string { return fmt.Sprintf("sqlite error %d", e.code) }
func (e *codedError) Code() int     { return e.code }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&codedError{sqliteBusy}, true},
		{&codedError{sqliteLocked}, true},
		// Extended result code SQLITE_BUSY_SNAPSHOT.
		{&codedError{517}, true},
		{fmt.Errorf("wrapped: %w", &codedError{sqliteBusy}), true},
		{driver.ErrBadConn, true},
		{&codedError{19}, false},
		{errors.New("syntax error"), false},
	}

	for _, tt := range tests {
		if got := isTransient(tt.err); got != tt.want {
			t.Errorf("isTransient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestWithRetryRecoversFromTransientError(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &codedError{sqliteBusy}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetryGivesUp(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func() error {
		calls++
		return &codedError{sqliteLocked}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != maxAttempts {
		t.Errorf("expected %d calls, got %d", maxAttempts, calls)
	}
}

func TestWithRetryPermanentError(t *testing.T) {
	calls := 0
	want := errors.New("constraint failed")
	err := withRetry(context.Background(), func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
