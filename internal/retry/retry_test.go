package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/THIS-Institute/thiscovery-surveys/internal/retry"
)

var errFlaky = errors.New("flaky")

func fastConfig(attempts int) retry.Config {
	return retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		IsRetryable:  func(err error) bool { return errors.Is(err, errFlaky) },
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	var retries []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, _ time.Duration, _ error) { retries = append(retries, attempt) }

	err := retry.Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()

	permanent := errors.New("permanent")
	calls := 0

	err := retry.Retry(context.Background(), fastConfig(5), func(context.Context) error {
		calls++
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.NotErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	assert.Equal(t, 1, calls)
}

func TestRetry_MaxAttemptsWrapsLastError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retry.Retry(context.Background(), fastConfig(2), func(context.Context) error {
		calls++
		return errFlaky
	})

	require.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 2, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.Retry(ctx, fastConfig(3), func(context.Context) error {
		t.Fatal("fn must not run with a cancelled context")
		return nil
	})

	require.ErrorIs(t, err, retry.ErrContextCancelled)
	require.ErrorIs(t, err, context.Canceled)
}

func TestConfig_BackoffIsCapped(t *testing.T) {
	t.Parallel()

	cfg := retry.Config{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, cfg.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, cfg.Backoff(2))
	assert.Equal(t, 300*time.Millisecond, cfg.Backoff(3))
	assert.Equal(t, 300*time.Millisecond, cfg.Backoff(10))
}

func TestDefaultIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, retry.DefaultIsRetryable(nil))
	assert.True(t, retry.DefaultIsRetryable(context.DeadlineExceeded))
	assert.False(t, retry.DefaultIsRetryable(errors.New("boom")))
}
