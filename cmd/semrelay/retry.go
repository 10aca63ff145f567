package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/semrelay/errors"
	"github.com/c360/semrelay/pkg/retry"
)

// retryTransient runs every attempt of fn through the retry engine and gives up
// at the first failure errors.IsRetryable rejects. The engine retries whatever it
// is handed, so a permanent failure cancels the attempt context and is returned
// as is.
func retryTransient[T any](ctx context.Context, logger *slog.Logger, cfg retry.Config, op string,
	fn func(context.Context) (T, error),
) (T, error) {
	attemptCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn("Retrying "+op, "attempt", attempt, "max_attempts", cfg.MaxAttempts,
			"delay", delay, "error", err)
	}

	result, err := retry.DoWithResult(attemptCtx, cfg, func() (T, error) {
		v, err := fn(attemptCtx)
		if err != nil && !errors.IsRetryable(err) {
			stop(err)
		}
		return v, err
	})
	if err == nil {
		return result, nil
	}
	if ctx.Err() == nil {
		if cause := context.Cause(attemptCtx); cause != nil {
			return result, cause
		}
	}
	if retry.IsExhausted(err) {
		logger.Error("Giving up on "+op, "attempts", cfg.MaxAttempts, "error", err)
	}
	return result, err
}
