package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds retries of transient store failures while committing.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy is three attempts with a 50ms base delay.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond}

// backoffDelay returns a full-jitter delay in [0, base·2^attempt).
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base << min(attempt, 16)
	return time.Duration(rand.Int64N(int64(delay)))
}

// retryTransient runs fn until it succeeds, fails with an error not marked ErrTransient,
// or the policy's attempts are used up. It returns the number of attempts made.
func retryTransient(ctx context.Context, p RetryPolicy, fn func(attempt int) error) (int, error) {
	attempts := max(p.MaxAttempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(attempt)
		if err == nil || !errors.Is(err, ErrTransient) {
			return attempt, err
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(backoffDelay(p.BaseDelay, attempt-1))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}
	return attempts, fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}
