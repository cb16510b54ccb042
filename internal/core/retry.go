package core

import (
	"context"
	"log"
	"time"
)

// withRetry runs fn up to maxAttempts times, sleeping baseDelay * 2^attempt
// after each failed attempt except the last. When every attempt fails, the
// last error is returned.
func withRetry[T any](ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == maxAttempts-1 {
			break
		}

		delay := baseDelay << attempt
		log.Printf("Attempt %d/%d failed: %v. Retrying in %s.", attempt+1, maxAttempts, err, delay)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}
