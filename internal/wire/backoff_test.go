package wire

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := NewBackoff(100 * time.Millisecond)

	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		d := b.Next()
		if d < 0 {
			t.Fatalf("negative backoff delay at iteration %d", i)
		}
		prev = d
	}
	_ = prev

	if b.current != MaxBackoff {
		t.Fatalf("expected backoff to cap at %v, got %v", MaxBackoff, b.current)
	}
}

func TestBackoffResetReturnsToInitial(t *testing.T) {
	b := NewBackoff(50 * time.Millisecond)
	b.Next()
	b.Next()
	b.Reset()
	if b.current != 50*time.Millisecond {
		t.Fatalf("expected reset to restore initial delay, got %v", b.current)
	}
}

func TestRetrySucceedsEventually(t *testing.T) {
	b := NewBackoff(time.Millisecond)
	attempts := 0
	err := Retry(context.Background(), b, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	b := NewBackoff(50 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, b, func() error {
		return errors.New("always fails")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
