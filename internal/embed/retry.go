package embed

import (
	"context"
	"time"
)

// RetryConfig is the shared HTTP retry policy every real provider client
// applies (spec §4.3): retry on 429 and 5xx with exponential backoff, cap
// 2 retries.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig is spec §4.3's policy: initial 200ms, cap 2s, 2 retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// retryableError is returned by a provider's do-request step to signal the
// response warrants a retry (429 or 5xx); any other error aborts
// immediately, matching spec §4.3's "any other non-OK status surfaces the
// response body as the error message" (not retried).
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func retryable(err error) error { return &retryableError{err: err} }

func isRetryable(err error) bool {
	_, ok := err.(*retryableError)
	return ok
}

// withRetry runs fn with exponential backoff, retrying only when fn returns
// a retryableError, up to cfg.MaxRetries additional attempts.
func withRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == cfg.MaxRetries {
			if re, ok := err.(*retryableError); ok {
				return re.err
			}
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}
