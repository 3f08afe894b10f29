package crawler

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy defines retry behavior with exponential backoff.
// MaxAttempts counts every attempt including the first; each attempt runs
// under its own AttemptTimeout. The delay before attempt n+1 is
// InitialBackoff × Multiplier^(n−1), optionally stretched by up to Jitter.
type RetryPolicy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64

	// Sleep waits between attempts; replaced in tests
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy creates a default retry policy
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:    5,
		AttemptTimeout: 60 * time.Second,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
		Sleep:          sleepCtx,
	}
}

// CalculateBackoff returns the delay after the given failed attempt (1-based).
// Jitter only ever lengthens the delay and stays below the growth factor, so
// successive delays strictly increase until MaxBackoff caps them.
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 2.0
	}

	backoff := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= multiplier
	}

	if p.Jitter > 0 {
		jitter := p.Jitter
		if limit := multiplier - 1; jitter >= limit {
			jitter = limit * 0.9
		}
		backoff += backoff * jitter * rand.Float64()
	}

	if p.MaxBackoff > 0 && backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	return time.Duration(backoff)
}

// ExecuteWithRetry runs fn until it succeeds, fails with a non-retryable
// error, or MaxAttempts is reached. It returns the number of attempts made.
// Cancellation of ctx stops immediately with ctx's error.
func (p *RetryPolicy) ExecuteWithRetry(ctx context.Context, logger arbor.ILogger, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = p.runAttempt(ctx, attempt, fn)
		if lastErr == nil {
			return attempt, nil
		}

		// Parent cancellation is never retried, even if fn saw a deadline
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}

		if !IsRetryable(lastErr) {
			logger.Debug().
				Int("attempt", attempt).
				Err(lastErr).
				Msg("Non-retryable error, failing immediately")
			return attempt, lastErr
		}

		if attempt < maxAttempts {
			backoff := p.CalculateBackoff(attempt)
			logger.Debug().
				Int("attempt", attempt).
				Err(lastErr).
				Dur("backoff", backoff).
				Msg("Retrying after backoff")

			if err := sleep(ctx, backoff); err != nil {
				return attempt, err
			}
		}
	}

	logger.Warn().
		Int("max_attempts", maxAttempts).
		Err(lastErr).
		Msg("All retry attempts exhausted")

	return maxAttempts, &RetryExhaustedError{Attempts: maxAttempts, Last: lastErr}
}

// runAttempt bounds a single attempt by AttemptTimeout.
func (p *RetryPolicy) runAttempt(ctx context.Context, attempt int, fn func(ctx context.Context, attempt int) error) error {
	attemptCtx := ctx
	if p.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		defer cancel()
	}

	err := fn(attemptCtx, attempt)
	if err == nil {
		return nil
	}

	// Surface attempt timeouts as deadline errors even when fn wrapped them
	if attemptCtx.Err() != nil && ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(err, context.DeadlineExceeded)
	}
	return err
}
