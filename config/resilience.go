package config

import (
	"time"

	"github.com/parley-ai/parley/resilience"
)

// Resilience converts the file surface into runtime resilience options.
// Millisecond fields become durations; unset pointer booleans take their
// defaults (jitter on, limiter and breaker enabled).
func (c Config) Resilience() resilience.Config {
	return resilience.Config{
		Retry: resilience.RetryConfig{
			MaxAttempts: c.Retry.MaxAttempts,
			BaseDelay:   time.Duration(c.Retry.BaseDelayMs) * time.Millisecond,
			MaxDelay:    time.Duration(c.Retry.MaxDelayMs) * time.Millisecond,
			Jitter:      boolOr(c.Retry.Jitter, true),
		},
		RateLimit: resilience.RateLimitConfig{
			Enabled:           boolOr(c.RateLimiter.Enabled, true),
			RequestsPerMinute: c.RateLimiter.RequestsPerMinute,
			PerBackend:        c.RateLimiter.PerBackend,
		},
		Breaker: resilience.BreakerConfig{
			Enabled:          boolOr(c.CircuitBreaker.Enabled, true),
			FailureThreshold: c.CircuitBreaker.FailureThreshold,
			RecoveryTimeout:  time.Duration(c.CircuitBreaker.RecoveryTimeoutMs) * time.Millisecond,
			HalfOpenMaxCalls: c.CircuitBreaker.HalfOpenMaxCalls,
		},
		Cache: resilience.CacheConfig{
			Enabled:    c.Cache.Enabled,
			TTL:        time.Duration(c.Cache.TTLMs) * time.Millisecond,
			MaxEntries: c.Cache.MaxEntries,
		},
	}
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
