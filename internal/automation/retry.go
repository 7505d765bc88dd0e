package automation

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"example.com/careops/services/automation/internal/models"
)

// RetryPolicy governs re-delivery of failed channel calls. It is injected
// into the executor so tests can exercise exhaustion without real delays.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Retryable   func(error) bool
}

// DefaultRetryPolicy retries transient channel errors up to three times
// with a fixed backoff. Permanent channel failures and non-channel errors
// are not retried.
func DefaultRetryPolicy(maxAttempts int, backoff time.Duration) RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		Retryable:   IsTransient,
	}
}

// IsTransient reports whether err is a channel error eligible for retry.
// Timeouts count as transient.
func IsTransient(err error) bool {
	var chErr *models.ChannelError
	if errors.As(err, &chErr) {
		return chErr.Transient
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Run invokes fn until it succeeds, exhausts MaxAttempts, or hits a
// non-retryable error. The last error is returned on failure.
func (p RetryPolicy) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff):
		}
	}
	return errors.Wrapf(lastErr, "exhausted %d attempts", p.MaxAttempts)
}
