package objectstore

import (
	"context"
	"fmt"
	"time"
)

// retryConfig controls the exponential backoff used around S3 calls,
// adapted from the uploader's retry.Do.
type retryConfig struct {
	maxAttempts int
	initialWait time.Duration
}

func defaultRetryConfig() retryConfig {
	return retryConfig{maxAttempts: 5, initialWait: 1 * time.Second}
}

func doWithRetry(ctx context.Context, cfg retryConfig, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if attempt < cfg.maxAttempts {
			wait := cfg.initialWait * time.Duration(1<<(attempt-1))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	return fmt.Errorf("objectstore: failed after %d attempts: %w", cfg.maxAttempts, lastErr)
}
