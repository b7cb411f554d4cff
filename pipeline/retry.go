package pipeline

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryConfig bounds retries of provider-classified failures.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per external call.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration `yaml:"backoff_base" json:"backoff_base"`

	// BackoffMultiplier is applied to backoff on each retry.
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier"`

	// MaxBackoff caps the backoff duration.
	MaxBackoff time.Duration `yaml:"max_backoff" json:"max_backoff"`
}

// DefaultRetryConfig returns sensible retry defaults for external operators.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// backoff computes the exponential backoff for an attempt with +/-25% jitter.
// Jitter prevents synchronized retries across concurrent runs.
func (c RetryConfig) backoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.BackoffMultiplier
	}
	d := time.Duration(float64(c.BackoffBase) * multiplier)
	if d > c.MaxBackoff {
		d = c.MaxBackoff
	}
	jitter := float64(d) * 0.25 * (rand.Float64()*2 - 1)
	return d + time.Duration(jitter)
}

// withRetry runs fn up to cfg.MaxAttempts times, backing off between attempts.
// Non-retryable classifications surface immediately. onRetry, when non-nil, is
// called once per retry.
func withRetry(ctx context.Context, cfg RetryConfig, logger *slog.Logger, stage string, onRetry func(), fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !Retryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		if onRetry != nil {
			onRetry()
		}
		backoff := cfg.backoff(attempt)
		logger.Debug("Stage failed, retrying",
			"stage", stage,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"backoff", backoff,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}
