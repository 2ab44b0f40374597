// Package retry provides retry logic with configurable backoff.
// It helps handle transient failures gracefully by automatically retrying
// failed operations, and centralizes the decision of which errors are
// worth retrying at all.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"syscall"
	"time"

	"channelwatch/internal/domain/entity"
)

// Strategy selects how the delay between attempts grows.
type Strategy int

const (
	// Linear grows the delay as BaseDelay × attempt (1x, 2x, 3x, ...).
	Linear Strategy = iota

	// Exponential grows the delay as BaseDelay × Multiplier^(attempt-1).
	Exponential
)

// Config holds the configuration for retry logic.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay unit between attempts.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// Strategy selects linear or exponential growth.
	Strategy Strategy

	// Multiplier is the exponential growth factor. Ignored for Linear.
	Multiplier float64

	// JitterFraction is the fraction of the delay to add as random jitter
	// (0.0 to 1.0). Zero disables jitter.
	JitterFraction float64
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      1 * time.Second,
		MaxDelay:       30 * time.Second,
		Strategy:       Exponential,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// TelemetryFetchConfig returns the configuration used for telemetry API
// fetches: a small number of attempts with linearly increasing delays.
// The delay before attempt n+1 is BaseDelay × n.
func TelemetryFetchConfig(attempts int, delay time.Duration) Config {
	return Config{
		MaxAttempts: attempts,
		BaseDelay:   delay,
		MaxDelay:    time.Minute,
		Strategy:    Linear,
	}
}

// DelayFor returns the delay to sleep after a failed attempt (1-based)
// before the next one, including jitter.
func (c Config) DelayFor(attempt int) time.Duration {
	var d time.Duration
	switch c.Strategy {
	case Exponential:
		d = c.BaseDelay
		for i := 1; i < attempt; i++ {
			d = time.Duration(float64(d) * c.Multiplier)
			if d > c.MaxDelay {
				break
			}
		}
	default:
		d = c.BaseDelay * time.Duration(attempt)
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return addJitter(d, c.JitterFraction)
}

// WithBackoff executes fn until it succeeds, a non-retryable error occurs,
// the context is cancelled, or MaxAttempts is exhausted. The last error is
// wrapped in the returned exhaustion error.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", slog.Int("attempt", attempt))
			}
			return nil
		}

		if !IsRetryable(lastErr) {
			slog.Warn("non-retryable error, aborting",
				slog.Int("attempt", attempt),
				slog.Any("error", lastErr))
			return lastErr
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.DelayFor(attempt)
		slog.Warn("operation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr))

		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
}

// Sleep waits for d or until the context is cancelled, whichever comes
// first. A cancelled context returns its error wrapped.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("retry aborted: %w", ctx.Err())
	}
}

// IsRetryable determines if an error is worth retrying.
//
// Validation errors and context cancellation are never retried. Network
// errors of any kind and structurally invalid responses are retried: the
// API rejecting a key or returning a 500 are both transient from the
// dashboard's point of view.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var validationErr *entity.ValidationError
	if errors.As(err, &validationErr) {
		return false
	}

	var netErr *entity.NetworkError
	if errors.As(err, &netErr) {
		return true
	}

	var invalidErr *entity.InvalidResponseError
	if errors.As(err, &invalidErr) {
		return true
	}

	// Transport-level timeouts
	var timeoutErr net.Error
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return true
	}

	// Syscall errors
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	return false
}

// addJitter adds random jitter to a duration to prevent thundering herd.
func addJitter(duration time.Duration, jitterFraction float64) time.Duration {
	if jitterFraction <= 0 {
		return duration
	}
	if jitterFraction > 1.0 {
		jitterFraction = 1.0
	}
	// #nosec G404 -- Using math/rand is acceptable for jitter calculation.
	// Cryptographic randomness is not required for retry backoff jitter.
	jitter := time.Duration(rand.Float64() * float64(duration) * jitterFraction)
	return duration + jitter
}
