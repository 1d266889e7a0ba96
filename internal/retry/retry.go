package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy bounds retries for a class of remote calls. The delay starts at
// BaseDelay and doubles on each failed attempt.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// Sleep waits between attempts. Tests swap this out to assert on the
	// backoff sequence without real waiting. Nil means a context-aware wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do runs fn up to MaxAttempts times. It returns nil on the first success,
// or the last error once attempts are exhausted. Label identifies the call
// in logs.
func (p Policy) Do(ctx context.Context, logger *slog.Logger, label string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Wait
	}

	var lastErr error
	delay := p.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt == attempts {
			break
		}

		if logger != nil {
			logger.Warn("call failed, retrying",
				"call", label,
				"attempt", attempt,
				"max_attempts", attempts,
				"delay", delay.String(),
				"error", lastErr,
			)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}

	return fmt.Errorf("%s: %d attempts exhausted: %w", label, attempts, lastErr)
}

// Wait blocks for d or until ctx is cancelled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
