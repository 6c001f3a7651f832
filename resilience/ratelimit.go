package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/parley-ai/parley/llm"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultRequestsPerMinute applies to backends with no explicit limit.
	DefaultRequestsPerMinute = 60
	// acquirePollInterval is how often Acquire re-checks for a token.
	acquirePollInterval = 100 * time.Millisecond
	// DefaultAcquireTimeout bounds how long Acquire waits before failing open.
	DefaultAcquireTimeout = 10 * time.Second
)

// RateLimitConfig holds client-side rate limiter options.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	// PerBackend overrides the requests-per-minute value for named backends.
	PerBackend map[string]int
}

// DefaultRateLimitConfig returns an enabled limiter at 60 requests/minute.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: DefaultRequestsPerMinute,
	}
}

// RateLimiter keeps one token bucket per backend identifier. Buckets refill
// continuously at rpm/60 tokens per second with capacity equal to the
// configured requests-per-minute value.
type RateLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	logger  zerolog.Logger
}

// NewRateLimiter creates a per-backend rate limiter. Each bucket starts
// full, so a cold start can admit up to one capacity's worth of requests
// immediately on top of the refill; sustained traffic converges on the
// configured per-minute rate.
func NewRateLimiter(cfg RateLimitConfig, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		buckets: make(map[string]*rate.Limiter),
		logger:  logger.With().Str("component", "rate_limiter").Logger(),
	}
}

func (l *RateLimiter) rpmFor(backend string) int {
	if rpm, ok := l.cfg.PerBackend[backend]; ok && rpm > 0 {
		return rpm
	}
	if l.cfg.RequestsPerMinute > 0 {
		return l.cfg.RequestsPerMinute
	}
	return DefaultRequestsPerMinute
}

func (l *RateLimiter) bucketFor(backend string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[backend]; ok {
		return b
	}
	rpm := l.rpmFor(backend)
	b := rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
	l.buckets[backend] = b
	return b
}

// TryAcquire takes one token for backend if available, without blocking.
// When the limiter is disabled every acquisition succeeds.
func (l *RateLimiter) TryAcquire(backend string) bool {
	if !l.cfg.Enabled {
		return true
	}
	return l.bucketFor(backend).Allow()
}

// Acquire polls for a token in short sleeps until it succeeds or timeout
// passes. Past the deadline the call proceeds anyway (fail-open) so a
// saturated limiter degrades to delayed requests instead of blocking
// callers indefinitely. If ctx ends while waiting, Acquire returns a
// rate-limited rejection wrapping the context error: the request was never
// sent.
func (l *RateLimiter) Acquire(ctx context.Context, backend string, timeout time.Duration) error {
	if !l.cfg.Enabled {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	deadline := time.Now().Add(timeout)
	for {
		if l.TryAcquire(backend) {
			return nil
		}
		if time.Now().After(deadline) {
			l.logger.Warn().Str("backend", backend).Dur("waited", timeout).
				Msg("Rate limiter deadline passed without a token. Proceeding anyway")
			return nil
		}
		timer := time.NewTimer(acquirePollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			rejection := llm.NewRateLimitedError(backend)
			rejection.Err = ctx.Err()
			return rejection
		case <-timer.C:
		}
	}
}
