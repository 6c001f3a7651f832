package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/parley-ai/parley/llm"
	"github.com/rs/zerolog"
)

const (
	// DefaultFailureThreshold opens the circuit after this many consecutive
	// failures while closed.
	DefaultFailureThreshold = 5
	// DefaultRecoveryTimeout is how long an open circuit stays open before
	// trial calls are allowed.
	DefaultRecoveryTimeout = 30 * time.Second
	// DefaultHalfOpenMaxCalls bounds trial calls while half-open.
	DefaultHalfOpenMaxCalls = 3
)

// BreakerConfig holds circuit breaker options.
type BreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenMaxCalls int
}

// DefaultBreakerConfig returns an enabled breaker with a threshold of 5
// failures, 30s recovery, and 3 half-open trials.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:          true,
		FailureThreshold: DefaultFailureThreshold,
		RecoveryTimeout:  DefaultRecoveryTimeout,
		HalfOpenMaxCalls: DefaultHalfOpenMaxCalls,
	}
}

func (c BreakerConfig) normalized() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = DefaultHalfOpenMaxCalls
	}
	return c
}

// CircuitState is the state of one backend's circuit.
type CircuitState string

const (
	StateClosed   CircuitState = "closed"
	StateOpen     CircuitState = "open"
	StateHalfOpen CircuitState = "half_open"
)

// circuit is the per-backend state record. All transitions happen under mu
// so two callers cannot both believe they are the first half-open trial.
type circuit struct {
	mu            sync.Mutex
	state         CircuitState
	failures      int
	halfOpenCalls int
	openedAt      time.Time
}

// CircuitBreaker keeps a failure-triggered circuit per backend identifier.
type CircuitBreaker struct {
	cfg      BreakerConfig
	mu       sync.Mutex
	circuits map[string]*circuit
	logger   zerolog.Logger
	now      func() time.Time
}

// NewCircuitBreaker creates a per-backend circuit breaker.
func NewCircuitBreaker(cfg BreakerConfig, logger zerolog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:      cfg.normalized(),
		circuits: make(map[string]*circuit),
		logger:   logger.With().Str("component", "circuit_breaker").Logger(),
		now:      time.Now,
	}
}

func (b *CircuitBreaker) circuitFor(backend string) *circuit {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.circuits[backend]
	if !ok {
		c = &circuit{state: StateClosed}
		b.circuits[backend] = c
	}
	return c
}

// Allow reports whether a call to backend may proceed. It returns a
// CircuitOpenError rejection when the circuit is open or half-open trials
// are exhausted; the rejected request is never sent.
func (b *CircuitBreaker) Allow(backend string) error {
	if !b.cfg.Enabled {
		return nil
	}
	c := b.circuitFor(backend)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(c.openedAt) < b.cfg.RecoveryTimeout {
			return llm.NewCircuitOpenError(backend)
		}
		c.state = StateHalfOpen
		c.halfOpenCalls = 0
		b.logger.Info().Str("backend", backend).Msg("Circuit half-open, allowing trial calls")
		fallthrough
	case StateHalfOpen:
		if c.halfOpenCalls >= b.cfg.HalfOpenMaxCalls {
			return llm.NewCircuitOpenError(backend)
		}
		c.halfOpenCalls++
		return nil
	default:
		return nil
	}
}

// RecordSuccess records a successful call for backend. A success while
// half-open closes the circuit; while closed it resets the consecutive
// failure count.
func (b *CircuitBreaker) RecordSuccess(backend string) {
	if !b.cfg.Enabled {
		return
	}
	c := b.circuitFor(backend)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateHalfOpen {
		b.logger.Info().Str("backend", backend).Msg("Circuit closed after successful trial")
	}
	c.state = StateClosed
	c.failures = 0
	c.halfOpenCalls = 0
}

// RecordFailure records a failed call for backend. While closed, reaching
// the failure threshold opens the circuit; a failure while half-open
// reopens it immediately and restarts the recovery clock.
func (b *CircuitBreaker) RecordFailure(backend string) {
	if !b.cfg.Enabled {
		return
	}
	c := b.circuitFor(backend)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateHalfOpen:
		c.state = StateOpen
		c.openedAt = b.now()
		c.halfOpenCalls = 0
		b.logger.Warn().Str("backend", backend).Msg("Trial call failed, circuit reopened")
	case StateClosed:
		c.failures++
		if c.failures >= b.cfg.FailureThreshold {
			c.state = StateOpen
			c.openedAt = b.now()
			b.logger.Warn().Str("backend", backend).Int("failures", c.failures).Msg("Failure threshold reached, circuit opened")
		}
	case StateOpen:
		// Late failure from a call admitted before opening; nothing to do.
	}
}

// Call guards fn with the circuit for backend. Context cancellation is not
// counted as a backend failure.
func (b *CircuitBreaker) Call(ctx context.Context, backend string, fn func() error) error {
	if err := b.Allow(backend); err != nil {
		return err
	}
	err := fn()
	if err == nil {
		b.RecordSuccess(backend)
		return nil
	}
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		b.RecordFailure(backend)
	}
	return err
}

// State returns the current circuit state for backend, accounting for an
// elapsed recovery timeout.
func (b *CircuitBreaker) State(backend string) CircuitState {
	if !b.cfg.Enabled {
		return StateClosed
	}
	c := b.circuitFor(backend)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateOpen && b.now().Sub(c.openedAt) >= b.cfg.RecoveryTimeout {
		return StateHalfOpen
	}
	return c.state
}
