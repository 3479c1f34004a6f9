package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/webhook-indexer/internal/errors"
)

func testConfig() *Config {
	return &Config{MaxAttempts: 3, Delay: time.Millisecond}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result := Do(context.Background(), testConfig(), func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})

	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, calls)
	assert.NoError(t, result.LastError)
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	result := Do(context.Background(), testConfig(), func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return errors.NewTransientError("connection refused", nil)
		}
		return nil
	})

	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, 3, result.Attempts)
}

func TestDoExhausted(t *testing.T) {
	calls := 0
	result := Do(context.Background(), testConfig(), func(ctx context.Context, attempt int) error {
		calls++
		return errors.NewTransientError("timeout", nil)
	})

	assert.Equal(t, StatusExhausted, result.Status)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, calls)
	assert.Error(t, result.LastError)
}

func TestDoNonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	result := Do(context.Background(), testConfig(), func(ctx context.Context, attempt int) error {
		calls++
		return errors.NewDataError("USER_NOT_FOUND", "user not found")
	})

	assert.Equal(t, StatusNonRetryable, result.Status)
	assert.Equal(t, 1, calls)
}

func TestDoContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := &Config{MaxAttempts: 5, Delay: time.Minute}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := Do(ctx, cfg, func(ctx context.Context, attempt int) error {
		return errors.NewTransientError("timeout", nil)
	})

	assert.Equal(t, StatusExhausted, result.Status)
	assert.ErrorIs(t, result.LastError, context.Canceled)
	assert.Equal(t, 1, result.Attempts)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "exhausted", StatusExhausted.String())
	assert.Equal(t, "non_retryable", StatusNonRetryable.String())
}
