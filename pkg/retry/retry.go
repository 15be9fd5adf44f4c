// Package retry provides retry loops with configurable backoff for the noso2m miner.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/bardlex/noso2m/pkg/errors"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
	// Linear grows the delay by BaseDelay per attempt instead of multiplying it
	Linear bool
}

// DefaultConfig returns a sensible default retry configuration
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// NetworkConfig returns retry configuration for event sinks reached over the network
func NetworkConfig() *Config {
	return &Config{
		MaxAttempts: 5,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Multiplier:  1.5,
		Jitter:      true,
	}
}

// StoreConfig returns retry configuration for redis, postgres and influx writes
func StoreConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    3 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// PoolSubmitConfig returns the inline retry used when sending a share to a pool:
// five tries, a flat 100ms apart.
func PoolSubmitConfig() *Config {
	return &Config{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    100 * time.Millisecond,
		Multiplier:  1.0,
	}
}

// PoolTargetConfig returns the backoff used while polling a pool for a target:
// five tries per pool, sleeping tries*100ms between them.
func PoolTargetConfig() *Config {
	return &Config{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
		Linear:      true,
	}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func() error

// Do executes a function with retry logic
func Do(ctx context.Context, config *Config, fn RetryableFunc) error {
	_, err := DoWithResult(ctx, config, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult executes a function with retry logic and returns a result
func DoWithResult[T any](ctx context.Context, config *Config, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	if config == nil {
		config = DefaultConfig()
	}

	for attempt := range config.MaxAttempts {
		res, err := fn()
		if err == nil {
			return res, nil
		}

		lastErr = err

		if !errors.IsRetryable(err) {
			return zero, err
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(config.Delay(attempt)):
		}
	}

	return zero, errors.Wrap(lastErr, errors.ErrorTypeInternal, "retry",
		"operation failed after maximum retry attempts").
		WithContext("max_attempts", config.MaxAttempts)
}

// Delay returns the pause after the given zero-based attempt
func (c *Config) Delay(attempt int) time.Duration {
	var delay float64
	if c.Linear {
		delay = float64(c.BaseDelay) * float64(attempt+1)
	} else {
		delay = float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt))
	}

	if c.MaxDelay > 0 {
		delay = min(delay, float64(c.MaxDelay))
	}

	if c.Jitter {
		// up to 10% extra
		delay += delay * 0.1 * rand.Float64()
	}

	return time.Duration(delay)
}
