// Package circuit provides a circuit breaker that keeps slow or dead event
// sinks from stalling the mining loop.
package circuit

import (
	"context"
	"sync"
	"time"

	"github.com/bardlex/noso2m/pkg/errors"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed lets every call through
	StateClosed State = iota
	// StateOpen rejects calls until Timeout elapses
	StateOpen
	// StateHalfOpen lets calls through to probe recovery
	StateHalfOpen
)

// String returns string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration
type Config struct {
	Name            string
	MaxFailures     int           // failures before opening
	SuccessRequired int           // successes in half-open before closing
	Timeout         time.Duration // open -> half-open delay
	ResetTimeout    time.Duration // failure count decay while closed

	// OnStateChange is called outside the lock after every transition
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Name:            "default",
		MaxFailures:     5,
		SuccessRequired: 3,
		Timeout:         30 * time.Second,
		ResetTimeout:    60 * time.Second,
	}
}

// SinkConfig returns the configuration used around reporting sinks
func SinkConfig(name string) *Config {
	return &Config{
		Name:            name,
		MaxFailures:     3,
		SuccessRequired: 2,
		Timeout:         15 * time.Second,
		ResetTimeout:    60 * time.Second,
	}
}

// Breaker implements the circuit breaker pattern
type Breaker struct {
	config *Config
	mutex  sync.Mutex

	state         State
	failures      int
	successes     int
	lastFailTime  time.Time
	lastResetTime time.Time
	now           func() time.Time
}

// New creates a new circuit breaker
func New(config *Config) *Breaker {
	if config == nil {
		config = DefaultConfig()
	}

	return &Breaker{
		config:        config,
		state:         StateClosed,
		lastResetTime: time.Now(),
		now:           time.Now,
	}
}

// Execute runs fn unless the circuit is open
func (cb *Breaker) Execute(_ context.Context, fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}

	err := fn()
	cb.after(err)
	return err
}

// ExecuteWithResult is Execute for functions returning a value
func ExecuteWithResult[T any](_ context.Context, cb *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := cb.before(); err != nil {
		return zero, err
	}

	result, err := fn()
	cb.after(err)
	return result, err
}

func (cb *Breaker) before() error {
	if cb.allowRequest() {
		return nil
	}
	return errors.New(errors.ErrorTypeInternal, "circuit_breaker", "circuit breaker is open").
		WithContext("breaker", cb.config.Name).
		WithContext("state", cb.GetState().String())
}

func (cb *Breaker) after(err error) {
	from, to := cb.recordResult(err)
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}

func (cb *Breaker) allowRequest() bool {
	cb.mutex.Lock()
	from := cb.state
	allowed := false
	now := cb.now()

	switch cb.state {
	case StateClosed:
		if now.Sub(cb.lastResetTime) > cb.config.ResetTimeout {
			cb.failures = 0
			cb.lastResetTime = now
		}
		allowed = true
	case StateOpen:
		if now.Sub(cb.lastFailTime) > cb.config.Timeout {
			cb.state = StateHalfOpen
			cb.successes = 0
			allowed = true
		}
	case StateHalfOpen:
		allowed = true
	}
	to := cb.state
	cb.mutex.Unlock()

	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
	return allowed
}

func (cb *Breaker) recordResult(err error) (State, State) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	from := cb.state
	if err != nil {
		cb.failures++
		cb.lastFailTime = cb.now()

		switch {
		case cb.state == StateClosed && cb.failures >= cb.config.MaxFailures:
			cb.state = StateOpen
			cb.successes = 0
		case cb.state == StateHalfOpen:
			cb.state = StateOpen
			cb.successes = 0
		}
		return from, cb.state
	}

	cb.successes++
	if cb.state == StateHalfOpen && cb.successes >= cb.config.SuccessRequired {
		cb.state = StateClosed
		cb.failures = 0
		cb.successes = 0
		cb.lastResetTime = cb.now()
	}
	return from, cb.state
}

// GetState returns the current state of the circuit breaker
func (cb *Breaker) GetState() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name         string
	State        State
	Failures     int
	Successes    int
	LastFailTime time.Time
}

// GetStats returns statistics about the circuit breaker
func (cb *Breaker) GetStats() Stats {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return Stats{
		Name:         cb.config.Name,
		State:        cb.state,
		Failures:     cb.failures,
		Successes:    cb.successes,
		LastFailTime: cb.lastFailTime,
	}
}

// Reset manually resets the circuit breaker to closed state
func (cb *Breaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.lastResetTime = cb.now()
}
