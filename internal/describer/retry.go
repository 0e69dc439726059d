package describer

import (
	"context"
	"errors"
	"time"

	"github.com/filedex/filedex/pkg/types"
)

// RetryConfig configures exponential backoff for provider calls.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns backoff defaults for maxRetries retries on top
// of the initial attempt: maxRetries of 3 means up to four calls total.
func DefaultRetryConfig(maxRetries int) RetryConfig {
	if maxRetries < 0 {
		maxRetries = 3
	}
	return RetryConfig{
		MaxAttempts: maxRetries + 1,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
	}
}

// retryable reports whether an error is worth another attempt. Auth failures
// will never succeed on retry, and an unreachable provider is surfaced
// immediately so the caller can pause instead of spinning.
func retryable(err error) bool {
	return !errors.Is(err, types.ErrAuthFailed) &&
		!errors.Is(err, types.ErrProviderUnavailable)
}

// retryWithBackoff runs fn with exponential backoff, honoring context
// cancellation between attempts.
func retryWithBackoff[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T
	backoff := cfg.BaseDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * cfg.Multiplier)
				if backoff > cfg.MaxDelay {
					backoff = cfg.MaxDelay
				}
			}
		}
	}
	return zero, lastErr
}
