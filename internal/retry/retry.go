// Package retry provides the single retry policy shared by the search client
// and the summarizer call sites.
package retry

import (
	"context"
	"time"
)

// Policy controls how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// Backoff returns the wait before retrying after a failed attempt
	// (0-based). Ignored when Retryable rejects the error.
	Backoff func(attempt int) time.Duration
	// Retryable decides whether an error is worth another attempt. A nil
	// predicate retries everything.
	Retryable func(err error) bool
	// Sleep is swappable in tests. Defaults to time.Sleep.
	Sleep func(d time.Duration)
}

// Expo returns a doubling backoff starting at base: base, 2*base, 4*base, ...
func Expo(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base << attempt
	}
}

// Do runs fn until it succeeds, the policy is exhausted, or the context is
// done. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = fn(); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt < attempts-1 && p.Backoff != nil {
			sleep(p.Backoff(attempt))
		}
	}
	return err
}
