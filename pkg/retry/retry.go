// Package retry provides exponential backoff retry logic for transient failures
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	// Thread-safe random source for jitter
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// ExhaustedError is returned when every attempt failed. Only the last error is kept.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: last error: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// IsExhausted reports whether err came from running out of attempts
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

// Config provides retry configuration
type Config struct {
	MaxAttempts  int           // Total attempts including the first one (>= 1)
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Upper bound for any single delay
	Multiplier   float64       // Backoff multiplier (> 1.0)
	AddJitter    bool          // Add up to 25% randomness to each delay

	// OnRetry, when set, is called after a failed attempt and before the wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig returns the backoff used for batch delivery:
// 3 attempts, 100ms initial delay, 5s cap, doubling.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Patient returns a config for operations that may wait longer on a recovering gateway
func Patient() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Validate checks the configuration invariants
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.New("retry: MaxAttempts must be at least 1")
	}
	if c.InitialDelay < 0 {
		return errors.New("retry: InitialDelay cannot be negative")
	}
	if c.MaxDelay < 0 {
		return errors.New("retry: MaxDelay cannot be negative")
	}
	if c.MaxDelay < c.InitialDelay {
		return errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	if c.Multiplier <= 1.0 {
		return errors.New("retry: Multiplier must be greater than 1.0")
	}
	return nil
}

// Delay returns the wait that follows a failed attempt n (1-based):
// min(InitialDelay * Multiplier^(n-1), MaxDelay), without jitter.
func (c Config) Delay(attempt int) time.Duration {
	delay := c.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = c.next(delay)
		if delay == c.MaxDelay {
			break
		}
	}
	return delay
}

func (c Config) next(delay time.Duration) time.Duration {
	// Check for overflow or exceeding MaxDelay
	nextDelay := float64(delay) * c.Multiplier
	if nextDelay > float64(c.MaxDelay) || nextDelay > float64(time.Duration(1<<63-1)) {
		return c.MaxDelay
	}
	return time.Duration(nextDelay)
}

// Do executes fn with exponential backoff retry. Every error is retried until
// MaxAttempts is reached; the caller decides beforehand whether an operation
// deserves retrying at all.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, ctx.Err())
		}

		// Don't sleep after the last attempt
		if attempt == cfg.MaxAttempts {
			break
		}

		sleepDuration := delay
		if cfg.AddJitter && delay >= 4 {
			randMu.Lock()
			jitter := time.Duration(randSource.Int63n(int64(delay / 4)))
			randMu.Unlock()
			sleepDuration = delay + jitter
			if sleepDuration > cfg.MaxDelay {
				sleepDuration = cfg.MaxDelay
			}
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, sleepDuration, err)
		}

		timer := time.NewTimer(sleepDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}

		delay = cfg.next(delay)
	}

	return &ExhaustedError{Attempts: cfg.MaxAttempts, Last: lastErr}
}

// DoWithResult executes fn with retry and returns both result and error
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}
