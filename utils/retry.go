package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPermanent marks an error that should not be retried.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so that RetryConfig.Do returns it immediately.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// RetryConfig holds the parameters for the retry strategy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *Logger
}

// Do executes fn with exponential back-off retry logic. Errors wrapping
// ErrPermanent and a cancelled ctx stop the loop early.
func (r *RetryConfig) Do(ctx context.Context, operationName string, fn func() error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	delay := r.BaseDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrPermanent) {
			return lastErr
		}

		if attempt < attempts {
			if r.Logger != nil {
				r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v, retrying in %v",
					operationName, attempt, attempts, lastErr, delay)
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled: %w", operationName, ctx.Err())
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, attempts, lastErr)
}
