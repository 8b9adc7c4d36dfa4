package infra

import (
	"context"
	"time"
)

// Classifier reports whether an error is transient and worth retrying.
type Classifier func(error) bool

// RetryConfig parameterizes the retry executor.
type RetryConfig struct {
	MaxAttempts int // total attempts, including the first
	Backoff     BackoffPolicy
}

// DefaultRetryConfig returns 4 total attempts (3 retries) with the standard
// backoff policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		Backoff:     DefaultBackoffPolicy(),
	}
}

// Retry runs op until it succeeds, returns a non-transient error, or the
// attempt budget is exhausted. Non-transient errors surface immediately,
// uncounted. On exhaustion the last classified error is returned unchanged.
// Retries within one call are strictly sequential.
func Retry[T any](ctx context.Context, cfg RetryConfig, classify Classifier, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := cfg.Backoff.JitteredDelay(attempt - 1)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !classify(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, lastErr
}
