package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/Veraticus/smart-captures/internal/service"
)

var (
	// ErrRateLimit indicates that the API rate limit has been exceeded.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries indicates that all retry attempts have been exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// WithRetry runs operation until it succeeds, returns a non-retryable error,
// or opts.MaxAttempts is used up. operation receives the 1-based attempt
// number. A Multiplier of 1 with no Jitter gives an exact fixed backoff.
func WithRetry(ctx context.Context, operation func(attempt int) error, opts service.RetryOptions) error {
	opts = retryDefaults(opts)
	delay := opts.InitialDelay

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		err := operation(attempt)
		if err == nil {
			if attempt > 1 {
				slog.Debug("Operation succeeded after retry", "operation", opts.Operation, "attempt", attempt)
			}
			return nil
		}

		var retryableErr *RetryableError
		if errors.As(err, &retryableErr) && !retryableErr.Retryable {
			return err
		}

		if attempt == opts.MaxAttempts {
			return fmt.Errorf("%s: %w after %d attempts: %w", opts.Operation, ErrMaxRetries, opts.MaxAttempts, err)
		}

		if errors.Is(err, ErrRateLimit) {
			delay = opts.MaxDelay
		}
		wait := jittered(delay, opts.Jitter)

		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err)
		}
		slog.Debug("Operation failed, retrying",
			"operation", opts.Operation,
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", wait,
			"error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = min(time.Duration(float64(delay)*opts.Multiplier), opts.MaxDelay)
	}

	return ErrMaxRetries
}

func retryDefaults(opts service.RetryOptions) service.RetryOptions {
	if opts.Operation == "" {
		opts.Operation = "operation"
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	opts.MaxDelay = max(opts.MaxDelay, opts.InitialDelay)
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}
	opts.Jitter = min(max(opts.Jitter, 0), 1)
	return opts
}

// jittered spreads d uniformly over [d*(1-f), d*(1+f)].
func jittered(d time.Duration, f float64) time.Duration {
	if f == 0 || d <= 0 {
		return d
	}
	spread := float64(d) * f
	return time.Duration(float64(d) - spread + rand.Float64()*2*spread)
}
