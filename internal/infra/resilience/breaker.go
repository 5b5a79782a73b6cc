// Package resilience provides a generic circuit breaker for calls to
// unreliable dependencies.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call without
// attempting the operation.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config defines the breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int `yaml:"failure_threshold"`
	// SuccessThreshold is the number of consecutive half-open successes
	// that closes it again.
	SuccessThreshold int `yaml:"success_threshold"`
	// Timeout is how long the circuit stays open before the next call is
	// allowed through as a probe.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig provides sensible defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// Breaker implements the circuit breaker pattern. Transitions are the sole
// mutator of its state; callers only observe it through Execute and State.
type Breaker struct {
	name string
	cfg  Config
	now  func() time.Time

	mu                   sync.Mutex
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	lastFailure          time.Time
}

// NewBreaker creates a closed breaker. The clock is injectable for tests
// via WithClock.
func NewBreaker(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Breaker{
		name:  name,
		cfg:   cfg,
		now:   time.Now,
		state: StateClosed,
	}
}

// WithClock replaces the breaker's clock. Intended for tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, accounting for an elapsed open timeout.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.lastFailure) >= b.cfg.Timeout {
		return StateHalfOpen
	}
	return b.state
}

// Execute runs the operation under breaker protection. While OPEN and
// within the timeout it fails fast with ErrCircuitOpen and never invokes
// the operation.
func (b *Breaker) Execute(op func() error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}
	err := op()
	b.afterCall(err)
	return err
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailure) < b.cfg.Timeout {
			return ErrCircuitOpen
		}
		// Timeout elapsed: let this call through as the probe.
		b.state = StateHalfOpen
		b.consecutiveSuccesses = 0
	}
	return nil
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.lastFailure = b.now()
		switch b.state {
		case StateHalfOpen:
			// A single probe failure re-opens immediately.
			b.state = StateOpen
			b.consecutiveFailures = 0
			b.consecutiveSuccesses = 0
		default:
			b.consecutiveFailures++
			if b.consecutiveFailures >= b.cfg.FailureThreshold {
				b.state = StateOpen
				b.consecutiveFailures = 0
			}
		}
		return
	}

	switch b.state {
	case StateHalfOpen:
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.consecutiveFailures = 0
			b.consecutiveSuccesses = 0
		}
	default:
		b.consecutiveFailures = 0
	}
}

// ExecuteWithFallback runs the operation and returns fallback on an
// OPEN-state short circuit or an operation failure. Dependencies used only
// for optional enrichment must never fail the caller's primary operation.
func ExecuteWithFallback[T any](b *Breaker, op func() (T, error), fallback T) T {
	var result T
	err := b.Execute(func() error {
		var opErr error
		result, opErr = op()
		return opErr
	})
	if err != nil {
		return fallback
	}
	return result
}
