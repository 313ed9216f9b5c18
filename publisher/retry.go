package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Retry runs op up to maxRetries+1 times, sleeping the policy's delay between
// attempts. The sleep is interruptible: a cancelled context aborts the loop
// and returns the context error. Policy and mechanism stay separate so each
// can be tested on its own.
func Retry(ctx context.Context, policy BackoffPolicy, maxRetries int, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}

		delay := policy.Delay(attempt)
		log.Warn().
			Err(lastErr).
			Int("attempt", attempt+1).
			Int("max_attempts", maxRetries+1).
			Dur("retry_delay", delay).
			Msg("Operation failed, retrying")

		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("exhausted %d attempts: %w", maxRetries+1, lastErr)
}

// Wrap binds a policy and budget to op, returning a retrying operation.
func Wrap(policy BackoffPolicy, maxRetries int, op func() error) func(context.Context) error {
	return func(ctx context.Context) error {
		return Retry(ctx, policy, maxRetries, op)
	}
}

// sleepCtx sleeps for d unless ctx is cancelled first.
// Returns true if the full sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
