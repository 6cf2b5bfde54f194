// Package retry provides a bounded retry executor for fallible operations.
//
// Callers pick a fixed per-phase delay rather than exponential backoff; the
// delays involved here are short (one or two seconds) and the attempt bounds
// small, so a progressive schedule buys nothing.
package retry

import (
	"context"
	"time"

	"github.com/codefionn/flowpilot/internal/logger"
)

// Notifier reports retry progress to the user before each delay. The attempt
// number is 1-based and max is the configured attempt ceiling. The UI has no
// other way to learn a retry is in flight, so this is a required side effect
// of Execute, not optional logging.
type Notifier func(attempt, max int)

// Execute invokes op up to maxAttempts times, waiting delay between attempts.
// The result of a failed attempt is discarded; only the value of a fully
// successful call is returned. After maxAttempts failures the terminal error
// is returned unchanged.
func Execute[T any](ctx context.Context, maxAttempts int, delay time.Duration, notify Notifier, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err
		logger.Warn("operation failed (attempt %d/%d): %v", attempt, maxAttempts, err)

		if attempt == maxAttempts {
			break
		}

		if notify != nil {
			notify(attempt, maxAttempts)
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return zero, lastErr
}
