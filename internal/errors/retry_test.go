package errors

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	// Given: a function that fails twice with a retryable error
	var calls int32
	fn := func() error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return PersistenceError(true, "database is locked", nil)
		}
		return nil
	}

	// When: retrying
	err := Retry(context.Background(), fastRetry(), fn)

	// Then: it succeeds on the third attempt
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls)
}

func TestRetry_DoesNotRetryPermanentErrors(t *testing.T) {
	var calls int32
	err := Retry(context.Background(), fastRetry(), func() error {
		atomic.AddInt32(&calls, 1)
		return DimensionMismatch(4, 3)
	})

	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.Equal(t, int32(1), calls)
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	var calls int32
	err := Retry(context.Background(), fastRetry(), func() error {
		atomic.AddInt32(&calls, 1)
		return PersistenceError(false, "read", nil)
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 retries")
	assert.Equal(t, int32(4), calls)
	assert.True(t, IsRetryable(err))
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetry(), func() error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultRetryConfig_HasSensibleDefaults(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Less(t, cfg.InitialDelay, cfg.MaxDelay)
	assert.Greater(t, cfg.Multiplier, 1.0)
}
