package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-git/engine/internal/retry"
)

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	result, err := retry.Do(context.Background(), retry.Standard(), func() (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	cfg := retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	result, err := retry.Do(context.Background(), cfg, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection reset by peer")
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, result)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	cfg := retry.Config{MaxAttempts: 5, InitialDelay: time.Millisecond}
	_, err := retry.Do(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, errors.New("authentication required")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond}
	_, err := retry.Do(ctx, cfg, func() (int, error) {
		return 0, errors.New("connection reset")
	})
	require.Error(t, err)
}

func TestIsRetryableErrorClassification(t *testing.T) {
	assert.True(t, retry.IsRetryableError(errors.New("i/o timeout")))
	assert.False(t, retry.IsRetryableError(errors.New("repository not found")))
	assert.False(t, retry.IsRetryableError(context.Canceled))
	assert.False(t, retry.IsRetryableError(nil))
}
