package runtime

import (
	"context"
	"time"

	"github.com/pithecene-io/strata/types"
)

// RetryPolicy bounds retries of artifact-acquisition failures.
// Only errors classified retryable by the taxonomy (checksum mismatch,
// fetch timeout, fetch failure) are retried; everything else surfaces
// immediately.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget (initial try included).
	// Values below 1 behave as 1.
	MaxAttempts int
	// BaseDelay is the first backoff delay; each retry doubles it.
	BaseDelay time.Duration
}

// DefaultRetryPolicy matches the webhook publisher's posture: three
// retries on top of the initial attempt, starting at half a second.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 4, BaseDelay: 500 * time.Millisecond}

// Do runs fn under the policy. Backoff sleeps respect ctx cancellation;
// fn itself is never interrupted mid-flight.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			delay := p.BaseDelay * time.Duration(1<<uint(i-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !types.Retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
