package messaging

import (
	"context"
	"time"
)

// RetryPolicy is the fixed-interval retry budget applied to handler
// failures. MaxAttempts counts retries beyond the first invocation, so a
// budget of N allows N+1 invocations in total.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// NewRetryPolicy creates a policy from configured values, normalizing a
// negative retry count to 3 and a non-positive interval to 2 seconds.
func NewRetryPolicy(retries int, interval time.Duration) RetryPolicy {
	if retries < 0 {
		retries = 3
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return RetryPolicy{MaxAttempts: retries, Interval: interval}
}

// ShouldRetry reports whether another invocation is allowed after the given
// number of failures.
func (p RetryPolicy) ShouldRetry(failures int) bool {
	return failures <= p.MaxAttempts
}

// Wait blocks for the retry interval, or returns early with the context
// error if the context is cancelled.
func (p RetryPolicy) Wait(ctx context.Context) error {
	timer := time.NewTimer(p.Interval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
