package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Logger: Discard()}
	calls := 0
	err := r.Do(context.Background(), "flaky", func() error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, Logger: Discard()}
	calls := 0
	err := r.Do(context.Background(), "broken", func() error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "broken failed after 2 attempts")
}

func TestRetryStopsOnPermanent(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, Logger: Discard()}
	calls := 0
	err := r.Do(context.Background(), "bad-request", func() error {
		calls++
		return Permanent(errors.New("400"))
	})
	require.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursCancel(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 5, BaseDelay: time.Hour, Logger: Discard()}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, "slow", func() error {
		calls++
		cancel()
		return errors.New("boom")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
