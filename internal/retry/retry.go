package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy describes a bounded retry schedule. Backoff receives the 1-based
// number of the attempt that just failed and returns how long to wait before
// the next one.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// Fixed returns a backoff with a constant delay between attempts.
func Fixed(delay time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return delay }
}

// Exponential returns a backoff that doubles from base and never exceeds max.
func Exponential(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			return max
		}
		return d
	}
}

// Do runs fn until it succeeds, the policy is exhausted, or ctx is done.
// The returned error is the last failure, wrapped with the attempt count.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
