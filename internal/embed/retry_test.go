package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry_SuccessOnFirstTry(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), DefaultRetryConfig(), func() error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_RetriesOnlyRetryableErrors(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	err := withRetry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return retryable(errors.New("temporary"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_NonRetryableErrorAbortsImmediately(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), DefaultRetryConfig(), func() error {
		attempts++
		return errors.New("validation failure")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_FailureAfterMaxRetries(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	err := withRetry(context.Background(), cfg, func() error {
		attempts++
		return retryable(errors.New("still failing"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial attempt + 2 retries
}
