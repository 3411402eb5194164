package wire

import (
	"context"
	"math/rand"
	"time"
)

// MaxBackoff is the reconnect delay ceiling.
const MaxBackoff = 30 * time.Second

// Backoff computes exponential reconnect delays starting at an initial
// value, doubling on each failure up to MaxBackoff, jittered by ±20%.
type Backoff struct {
	initial time.Duration
	current time.Duration
}

// NewBackoff returns a Backoff seeded at initial (clamped to MaxBackoff).
func NewBackoff(initial time.Duration) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if initial > MaxBackoff {
		initial = MaxBackoff
	}
	return &Backoff{initial: initial, current: initial}
}

// Reset returns the backoff to its initial delay, called after a
// successful connection.
func (b *Backoff) Reset() {
	b.current = b.initial
}

// Next returns the jittered delay to wait before the next attempt, then
// doubles the base delay for the attempt after that.
func (b *Backoff) Next() time.Duration {
	base := b.current
	jitterRange := float64(base) * 0.2
	jitter := time.Duration(jitterRange) - time.Duration(rand.Float64()*2*jitterRange)
	delay := base + jitter
	if delay < 0 {
		delay = base
	}

	b.current *= 2
	if b.current > MaxBackoff {
		b.current = MaxBackoff
	}
	return delay
}

// Retry calls try until it succeeds, sleeping with exponential backoff
// between attempts, or until ctx is cancelled.
func Retry(ctx context.Context, b *Backoff, try func() error) error {
	for {
		err := try()
		if err == nil {
			b.Reset()
			return nil
		}

		delay := b.Next()
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
