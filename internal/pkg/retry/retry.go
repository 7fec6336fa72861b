// Package retry provides bounded retries with exponential backoff and
// jitter for transient dependency failures.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy controls how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the backoff unit for the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration
}

// DefaultPolicy matches the platform-wide retry posture for external calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Do runs fn until it succeeds, ctx is cancelled, a non-retryable error is
// returned, or MaxAttempts is exhausted. retryable decides whether an error
// is worth another attempt; a nil retryable retries everything. The last
// error is returned on exhaustion.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error, retryable func(error) bool) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.delay(attempt))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			}
		}

		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// delay returns the backoff for the given retry attempt using exponential
// backoff with full jitter: random(0, min(maxDelay, baseDelay * 2^(attempt-1))),
// floored at 100ms to avoid busy-looping.
func (p Policy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	expDelay := float64(base) * math.Pow(2, float64(attempt-1))
	if expDelay > float64(maxDelay) {
		expDelay = float64(maxDelay)
	}

	jittered := time.Duration(rand.Float64() * expDelay)
	if jittered < 100*time.Millisecond {
		jittered = 100 * time.Millisecond
	}
	return jittered
}
