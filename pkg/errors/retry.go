package errors

import (
	"context"
	"math/rand/v2"
	"time"
)

// Defaults for model-call retries.
const (
	DefaultMaxRetries = 2
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultMaxDelay   = 10 * time.Second
	DefaultJitter     = 0.4
)

// RetryConfig controls RetryWithResult.
type RetryConfig struct {
	MaxRetries int           // attempts after the first call
	BaseDelay  time.Duration // delay before the first retry, doubled per attempt
	MaxDelay   time.Duration // cap on a single delay
	Jitter     float64       // 0 disables; 0.4 spreads delays over ±20%

	// OnRetry, when set, is called before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns the package defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		Jitter:     DefaultJitter,
	}
}

// Retry is RetryWithResult for functions without a result.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult calls fn until it succeeds, fails with an error that is
// not retryable, or MaxRetries retries are spent. Cancelling ctx stops the
// loop between attempts.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				return zero, Wrap(err, "context cancelled before first attempt")
			}
			return zero, Wrapf(lastErr, "context cancelled after %d attempts", attempt)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return result, err
		}
		if attempt >= cfg.MaxRetries {
			if cfg.MaxRetries == 0 {
				return result, err
			}
			return result, Wrapf(err, "failed after %d retries", cfg.MaxRetries)
		}

		delay := CalculateBackoff(cfg.BaseDelay, cfg.MaxDelay, attempt, cfg.Jitter)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, Wrapf(err, "context cancelled during backoff (retry %d/%d)", attempt+1, cfg.MaxRetries)
		case <-timer.C:
		}
	}
}

// CalculateBackoff returns min(base<<attempt, max), scaled by a random
// factor in [1-jitter/2, 1+jitter/2).
func CalculateBackoff(base, max time.Duration, attempt int, jitter float64) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := max
	if attempt < 32 && base<<attempt > 0 && base<<attempt < max {
		delay = base << attempt
	}
	factor := 1 - jitter/2 + jitter*rand.Float64()
	return time.Duration(float64(delay) * factor)
}
