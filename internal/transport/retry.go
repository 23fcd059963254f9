package transport

import (
	"context"
	"math"
	"math/rand"
	"time"

	"enrollment-sync/pkg/errors"
)

// RetryConfig defines retry behavior for outbound requests
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts" mapstructure:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay" mapstructure:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay" mapstructure:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	Jitter            bool          `json:"jitter" mapstructure:"jitter"`
}

// DefaultRetryConfig retries 429 and 5xx three times with 1s, 2s, 4s backoff.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:       3,
	InitialDelay:      1 * time.Second,
	MaxDelay:          30 * time.Second,
	BackoffMultiplier: 2.0,
	Jitter:            true,
}

// nextDelay calculates the wait before the given attempt (1-based)
func (c RetryConfig) nextDelay(attempt int) time.Duration {
	multiplier := c.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	delay := time.Duration(float64(c.InitialDelay) * math.Pow(multiplier, float64(attempt-1)))

	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}

	if c.Jitter && delay > 0 {
		jitter := time.Duration(float64(delay) * 0.1 * (rand.Float64() - 0.5))
		delay += jitter
	}

	return delay
}

// Retry runs op until it succeeds, returns a non-retryable error, the
// attempts are exhausted, or ctx is cancelled.
func Retry(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if !errors.IsRetryable(err) || attempt == attempts {
			return err
		}

		timer := time.NewTimer(cfg.nextDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
