package retry

import (
	"context"
	"log/slog"
	"time"
)

const DefaultMaxAttempts = 3

// Do invokes fn up to maxAttempts times, waiting attempt*baseDelay between
// failures (linear backoff: baseDelay, 2*baseDelay, ...). Only the final
// attempt's error is returned; earlier failures are logged. Cancelling the
// context ends the wait early and returns its error.
func Do(ctx context.Context, logger *slog.Logger, maxAttempts int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		if logger != nil {
			logger.Warn("attempt failed; retrying",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"err", lastErr,
			)
		}

		timer := time.NewTimer(time.Duration(attempt) * baseDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
