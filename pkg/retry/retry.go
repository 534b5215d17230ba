// Package retry wraps outbound calls with policy-driven retries.
//
// A Config selects the backoff strategy, attempt budget, and delay bounds.
// Only transient failures are retried: network timeouts, connection errors,
// and upstream HTTP statuses in the retryable set (429, most 5xx, and the
// 52x CDN range). Everything else, including context cancellation, stops
// the loop immediately and the last error is returned unchanged.
package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy selects how delays grow between attempts.
type Strategy string

const (
	// StrategyExponential grows the delay by Multiplier each attempt.
	StrategyExponential Strategy = "exponential"

	// StrategyFixed waits BaseDelay between every attempt.
	StrategyFixed Strategy = "fixed"

	// StrategyRandomJitter waits a uniformly random duration between zero
	// and the exponential delay for the attempt.
	StrategyRandomJitter Strategy = "random_jitter"
)

// Config controls the retry loop.
type Config struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor (default 2).
	Multiplier float64

	// Jitter randomizes exponential delays to avoid thundering herds.
	Jitter bool

	// Strategy selects the delay curve (default exponential).
	Strategy Strategy
}

// DefaultLLM is the retry profile for upstream LLM inference calls.
func DefaultLLM() Config {
	return Config{
		MaxAttempts: 4,
		BaseDelay:   2 * time.Second,
		MaxDelay:    120 * time.Second,
		Multiplier:  2,
		Jitter:      true,
		Strategy:    StrategyExponential,
	}
}

// DefaultKeycloak is the retry profile for Keycloak public-key fetches.
func DefaultKeycloak() Config {
	return Config{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Multiplier:  2,
		Jitter:      true,
		Strategy:    StrategyExponential,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2
	}
	if c.Strategy == "" {
		c.Strategy = StrategyExponential
	}
	return c
}

// delayFor computes the wait before the given attempt (1-based: the delay
// taken after attempt n failed, before attempt n+1 runs).
func (c Config) delayFor(attempt int) time.Duration {
	var delay time.Duration

	switch c.Strategy {
	case StrategyFixed:
		delay = c.BaseDelay
	case StrategyRandomJitter:
		exp := time.Duration(float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt-1)))
		if exp > c.MaxDelay {
			exp = c.MaxDelay
		}
		if exp <= 0 {
			return 0
		}
		return rand.N(exp)
	default:
		delay = time.Duration(float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt-1)))
	}

	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	if c.Jitter && c.Strategy == StrategyExponential && delay > 0 {
		// Equal jitter: half the delay is deterministic, half is random.
		delay = delay/2 + rand.N(delay/2+1)
	}
	return delay
}

// Do runs fn until it succeeds, exhausts the attempt budget, or fails with
// a non-retryable error. The operation name is used for logging only. The
// last error is returned unchanged so callers can inspect its type.
func Do(ctx context.Context, cfg Config, operation string, fn func(context.Context) error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := cfg.delayFor(attempt - 1)
			slog.Debug("retrying after transient error",
				"operation", operation,
				"attempt", attempt,
				"max_attempts", cfg.MaxAttempts,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(delay):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return lastErr
		}
		if !IsRetryable(err) {
			return lastErr
		}
	}
	return lastErr
}
