package resilience

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/parley-ai/parley/llm"
	"github.com/rs/zerolog"
)

// Config bundles the options for all four resilience primitives.
type Config struct {
	Retry     RetryConfig
	RateLimit RateLimitConfig
	Breaker   BreakerConfig
	Cache     CacheConfig
}

// DefaultConfig returns the default resilience configuration: retry,
// rate limiting, and circuit breaking enabled, caching opt-in.
func DefaultConfig() Config {
	return Config{
		Retry:     DefaultRetryConfig(),
		RateLimit: DefaultRateLimitConfig(),
		Breaker:   DefaultBreakerConfig(),
		Cache:     DefaultCacheConfig(),
	}
}

// Toggles selects which primitives apply to one wrapped provider and allows
// a per-call retry override. Zero value means "use the stack defaults".
type Toggles struct {
	DisableRetry     bool
	DisableCache     bool
	DisableRateLimit bool
	DisableBreaker   bool
	// Retry overrides the stack's retry policy when non-nil.
	Retry *RetryConfig
	// OnRetry is invoked before each retry attempt.
	OnRetry RetryNotify
}

// Stack owns the shared per-backend state tables: rate limiter buckets,
// circuit states, and the response cache. Many wrapped providers share one
// stack; mutations are atomic per backend identifier or fingerprint.
type Stack struct {
	cfg     Config
	Limiter *RateLimiter
	Breaker *CircuitBreaker
	Cache   *ResponseCache
	logger  zerolog.Logger
}

// NewStack creates the shared resilience state from cfg.
func NewStack(cfg Config, logger zerolog.Logger) *Stack {
	return &Stack{
		cfg:     cfg,
		Limiter: NewRateLimiter(cfg.RateLimit, logger),
		Breaker: NewCircuitBreaker(cfg.Breaker, logger),
		Cache:   NewResponseCache(cfg.Cache, logger),
		logger:  logger.With().Str("component", "resilience").Logger(),
	}
}

// Stop halts background work owned by the stack.
func (s *Stack) Stop() {
	s.Cache.Stop()
}

// Wrap decorates provider with the enabled resilience primitives for the
// given backend identifier. Chat calls pass through
// cache -> retry -> breaker -> rate limiter; streaming skips the cache and
// stops retrying once a fragment has been delivered.
func (s *Stack) Wrap(provider llm.Provider, backend string, t Toggles) llm.Provider {
	return &guardedProvider{stack: s, provider: provider, backend: backend, toggles: t}
}

type guardedProvider struct {
	stack    *Stack
	provider llm.Provider
	backend  string
	toggles  Toggles
}

func (g *guardedProvider) retryConfig() RetryConfig {
	if g.toggles.Retry != nil {
		return *g.toggles.Retry
	}
	return g.stack.cfg.Retry
}

// guarded runs op behind the rate limiter and circuit breaker.
func (g *guardedProvider) guarded(ctx context.Context, op func() error) error {
	inner := func() error {
		if !g.toggles.DisableRateLimit {
			if err := g.stack.Limiter.Acquire(ctx, g.backend, DefaultAcquireTimeout); err != nil {
				return err
			}
		}
		return op()
	}
	if g.toggles.DisableBreaker {
		return inner()
	}
	return g.stack.Breaker.Call(ctx, g.backend, inner)
}

// Chat implements llm.Provider.Chat.
func (g *guardedProvider) Chat(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	compute := func() (*llm.Response, error) {
		var resp *llm.Response
		op := func() error {
			return g.guarded(ctx, func() error {
				var err error
				resp, err = g.provider.Chat(ctx, req)
				return err
			})
		}
		var err error
		if g.toggles.DisableRetry {
			err = op()
		} else {
			err = Retry(ctx, g.retryConfig(), g.toggles.OnRetry, op)
		}
		if err != nil {
			return nil, err
		}
		return resp, nil
	}

	if g.stack.cfg.Cache.Enabled && !g.toggles.DisableCache {
		return g.stack.Cache.Fetch(Fingerprint(req), compute)
	}
	return compute()
}

// Stream implements llm.Provider.Stream. Responses are never served from or
// written to the cache, and a failure after the first delivered fragment is
// not retried since the caller has already observed partial output.
func (g *guardedProvider) Stream(ctx context.Context, req *llm.Request, onFragment llm.FragmentHandler) (*llm.Response, error) {
	emitted := false
	handler := onFragment
	if handler != nil {
		inner := handler
		handler = func(frag llm.Fragment) error {
			emitted = true
			return inner(frag)
		}
	}

	var resp *llm.Response
	run := func() error {
		return g.guarded(ctx, func() error {
			var err error
			resp, err = g.provider.Stream(ctx, req, handler)
			return err
		})
	}

	var err error
	if g.toggles.DisableRetry {
		err = run()
	} else {
		err = Retry(ctx, g.retryConfig(), g.toggles.OnRetry, func() error {
			err := run()
			if err != nil && emitted && llm.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		})
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// FormatTools implements llm.Provider.FormatTools.
func (g *guardedProvider) FormatTools(tools []llm.ToolSpec) any {
	return g.provider.FormatTools(tools)
}

var _ llm.Provider = (*guardedProvider)(nil)
