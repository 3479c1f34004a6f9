// Package retry provides bounded retry with a typed outcome.
package retry

import (
	"context"
	"time"

	"github.com/webhook-indexer/internal/errors"
	"github.com/webhook-indexer/internal/logging"
)

// Status is the tri-state outcome of a retried operation.
type Status int

const (
	// StatusOK means the operation eventually succeeded.
	StatusOK Status = iota
	// StatusExhausted means every attempt failed with a retryable error.
	// Callers treat this as "no data" and degrade to a no-op.
	StatusExhausted
	// StatusNonRetryable means an attempt failed with an error that retrying
	// cannot fix (data errors, provider rejections, conflicts).
	StatusNonRetryable
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusExhausted:
		return "exhausted"
	case StatusNonRetryable:
		return "non_retryable"
	default:
		return "unknown"
	}
}

// Config configures retry behavior
type Config struct {
	MaxAttempts int
	Delay       time.Duration // Fixed delay between attempts
}

// DefaultConfig returns the default retry configuration: 5 attempts, 2s apart.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 5,
		Delay:       2 * time.Second,
	}
}

// Result contains information about the retry operation
type Result struct {
	Status    Status
	Attempts  int
	LastError error
}

// Func is a function that can be retried
type Func func(ctx context.Context, attempt int) error

// Do executes fn with bounded attempts and a fixed delay between them.
// Only transient errors are retried; any other failure returns
// StatusNonRetryable immediately.
func Do(ctx context.Context, config *Config, fn Func) *Result {
	logger := logging.FromContext(ctx)

	result := &Result{Status: StatusExhausted}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.Status = StatusOK
			result.LastError = nil
			return result
		}

		result.LastError = err

		if !errors.IsTransient(err) {
			result.Status = StatusNonRetryable
			return result
		}

		if attempt >= config.MaxAttempts {
			logger.WithFields(map[string]interface{}{
				"attempts": attempt,
				"error":    err.Error(),
			}).Error("Operation failed after max retry attempts")
			break
		}

		logger.WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": config.MaxAttempts,
			"delay":       config.Delay.String(),
			"error":       err.Error(),
		}).Warn("Operation failed, retrying")

		select {
		case <-time.After(config.Delay):
		case <-ctx.Done():
			result.LastError = ctx.Err()
			return result
		}
	}

	return result
}
