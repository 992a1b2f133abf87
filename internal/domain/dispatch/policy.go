package dispatch

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy controls same-key retries for server errors and timeouts.
type BackoffPolicy struct {
	// MaxAttempts bounds how many times one key is tried before rotating.
	MaxAttempts int
	// InitialDelay is the delay before the first retry; it doubles on each
	// subsequent attempt.
	InitialDelay time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
	// JitterFactor (0.0-1.0) randomizes the delay to avoid thundering herd.
	JitterFactor float64
}

// DefaultBackoffPolicy returns the retry budget used unless configured
// otherwise: three attempts per key, 500ms doubling, capped at 10s.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		JitterFactor: 0.2,
	}
}

// Delay computes the backoff before retry number attempt (1-based).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 || p.InitialDelay <= 0 {
		return 0
	}
	delay := float64(p.InitialDelay) * math.Pow(2, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.JitterFactor > 0 {
		jitter := delay * p.JitterFactor * (rand.Float64()*2 - 1)
		delay += jitter
		if delay < 0 {
			delay = 0
		}
	}
	return time.Duration(delay)
}

// sleep waits for the given delay or until the context is abandoned.
func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
