// Package poll runs a status check on a fixed interval until it reports
// completion, fails, or runs out of time. The interval and deadline are
// driven by github.com/cenkalti/backoff/v4 with a constant backoff.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"igharvest/pkg/logger"
)

// ErrTimeout is returned when Config.Timeout elapses before the condition
// reports completion. Cancellation of the caller's context is returned as
// the context error instead.
var ErrTimeout = errors.New("poll timed out")

// Condition is evaluated once per tick. Returning done=true or a non-nil
// error ends polling.
type Condition[T any] func(ctx context.Context, attempt int) (result T, done bool, err error)

// Config holds poll configuration
type Config struct {
	// Interval is the wait before every check, including the first
	Interval time.Duration
	// Timeout bounds the whole loop; 0 means unbounded
	Timeout time.Duration
	// Logger receives one debug line per attempt
	Logger logger.Logger
}

// errNotDone makes the backoff loop check again
var errNotDone = errors.New("poll: not done")

// Until waits Interval, evaluates cond, and repeats until cond is done.
func Until[T any](ctx context.Context, cfg Config, cond Condition[T]) (T, error) {
	var zero T

	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}

	pollCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	// backoff checks at once; the first check also waits one interval
	if err := Wait(pollCtx, cfg.Interval); err != nil {
		return zero, classify(ctx, err)
	}

	attempt := 0
	b := backoff.WithContext(backoff.NewConstantBackOff(cfg.Interval), pollCtx)
	result, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		result, done, err := cond(pollCtx, attempt)
		if err != nil {
			return zero, backoff.Permanent(err)
		}
		if !done {
			return zero, errNotDone
		}
		return result, nil
	}, b, func(_ error, next time.Duration) {
		cfg.Logger.DebugWithFields("poll: not done yet", map[string]interface{}{
			"attempt":  attempt,
			"interval": next,
		})
	})
	if err != nil {
		// a check interrupted by our own deadline is a timeout, not a failure
		if pollCtx.Err() != nil {
			return zero, classify(ctx, pollCtx.Err())
		}
		return zero, err
	}
	return result, nil
}

func classify(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
