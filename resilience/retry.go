package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/parley-ai/parley/llm"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxAttempts is the total number of invocations before giving up.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the initial backoff delay.
	DefaultBaseDelay = 1 * time.Second
	// DefaultMaxDelay caps the backoff delay.
	DefaultMaxDelay = 30 * time.Second
	// JitterFactor perturbs each delay by up to ±25% when jitter is enabled.
	JitterFactor = 0.25
	// BackoffMultiplier doubles the delay on each attempt.
	BackoffMultiplier = 2.0
)

// RetryConfig holds retry policy options.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultRetryConfig returns the default retry policy: 3 attempts, 1s base
// delay doubling up to 30s, with jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Jitter:      true,
	}
}

// normalized fills zero fields with defaults so a partially-populated config
// behaves sensibly.
func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	return c
}

// RetryNotify is invoked before each retry with the attempt number that just
// failed and its error.
type RetryNotify func(attempt int, err error)

// Retry invokes op until it succeeds, returns a non-retryable error, or
// MaxAttempts is reached. Retryability is decided by llm.IsRetryable:
// rate-limit, network, timeout, and 5xx-class errors retry; authentication
// and validation errors do not. The last error is returned on exhaustion.
func Retry(ctx context.Context, cfg RetryConfig, notify RetryNotify, op func() error) error {
	cfg = cfg.normalized()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.BaseDelay
	eb.MaxInterval = cfg.MaxDelay
	eb.Multiplier = BackoffMultiplier
	eb.MaxElapsedTime = 0 // bounded by attempt count, not wall clock
	if cfg.Jitter {
		eb.RandomizationFactor = JitterFactor
	} else {
		eb.RandomizationFactor = 0
	}

	var b backoff.BackOff = backoff.WithMaxRetries(eb, uint64(cfg.MaxAttempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !llm.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.RetryNotify(wrapped, b, func(err error, next time.Duration) {
		attempt++
		if notify != nil {
			notify(attempt, err)
		}
	})
}

// RetryLogger returns a RetryNotify that logs each retry, for callers that
// have no callback of their own.
func RetryLogger(logger zerolog.Logger) RetryNotify {
	return func(attempt int, err error) {
		logger.Warn().Int("attempt", attempt).Err(err).Msg("Retrying after error")
	}
}
