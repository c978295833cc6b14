// Package circuitbreaker shields outbound platform calls from sources that
// are down or degraded. A breaker trips after repeated failures, rejects
// calls while open, then lets a few trial calls through before closing.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/opportunity-scanner/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed allows calls through
	StateClosed State = "closed"
	// StateOpen rejects calls until the cooldown elapses
	StateOpen State = "open"
	// StateHalfOpen admits a limited number of trial calls
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned while the breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyRequests is returned when the half-open trial quota is spent
var ErrTooManyRequests = errors.New("too many requests in half-open state")

// Config configures a circuit breaker
type Config struct {
	Name             string
	MaxFailures      int           // consecutive failures that trip the breaker
	FailureThreshold float64       // failure rate that trips it once enough calls happened
	Timeout          time.Duration // cooldown before trial calls are admitted
	HalfOpenMaxCalls int           // trial calls admitted while half-open
}

// CircuitBreaker tracks call outcomes for one source and decides whether the
// next call may go out.
type CircuitBreaker struct {
	name             string
	maxFailures      int
	failureThreshold float64
	timeout          time.Duration
	halfOpenMaxCalls int

	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	totalCalls       int
	consecutiveFails int
	lastFailureTime  time.Time
	lastStateChange  time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	return &CircuitBreaker{
		name:             config.Name,
		maxFailures:      config.MaxFailures,
		failureThreshold: config.FailureThreshold,
		timeout:          config.Timeout,
		halfOpenMaxCalls: config.HalfOpenMaxCalls,
		state:            StateClosed,
		lastStateChange:  time.Now(),
	}
}

// Execute runs fn if the breaker admits the call and records its outcome.
// The error from fn is passed through unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

// allow decides whether the next call may go out
func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastStateChange) <= cb.timeout {
			return ErrCircuitOpen
		}
		// Cooldown elapsed, admit trial calls against a fresh count.
		cb.transition(StateHalfOpen)
		logging.WithFields(map[string]interface{}{
			"source": cb.name,
			"state":  StateHalfOpen,
		}).Info("Circuit breaker admitting trial calls")
		return nil

	case StateHalfOpen:
		if cb.totalCalls >= cb.halfOpenMaxCalls {
			return ErrTooManyRequests
		}
		return nil

	default:
		return nil
	}
}

// record notes the outcome of an admitted call
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++
	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.successes++
	cb.consecutiveFails = 0

	if cb.state == StateHalfOpen && cb.successes >= cb.halfOpenMaxCalls {
		cb.transition(StateClosed)
		logging.WithFields(map[string]interface{}{
			"source": cb.name,
			"state":  StateClosed,
		}).Info("Circuit breaker closed after recovery")
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.consecutiveFails++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.shouldTrip() {
			cb.transition(StateOpen)
			logging.WithFields(map[string]interface{}{
				"source":            cb.name,
				"state":             StateOpen,
				"failures":          cb.failures,
				"total_calls":       cb.totalCalls,
				"failure_rate":      cb.failureRate(),
				"consecutive_fails": cb.consecutiveFails,
			}).Warn("Circuit breaker tripped")
		}

	case StateHalfOpen:
		// A failing trial call reopens immediately.
		cb.transition(StateOpen)
		logging.WithFields(map[string]interface{}{
			"source": cb.name,
			"state":  StateOpen,
		}).Warn("Circuit breaker reopened after failed trial call")
	}
}

// shouldTrip requires maxFailures consecutive failures, or the failure rate
// threshold once at least maxFailures calls have been observed.
func (cb *CircuitBreaker) shouldTrip() bool {
	if cb.consecutiveFails >= cb.maxFailures {
		return true
	}
	if cb.totalCalls >= cb.maxFailures && cb.failureRate() >= cb.failureThreshold {
		return true
	}
	return false
}

func (cb *CircuitBreaker) failureRate() float64 {
	if cb.totalCalls == 0 {
		return 0.0
	}
	return float64(cb.failures) / float64(cb.totalCalls)
}

// transition changes state and resets the per-state counters
func (cb *CircuitBreaker) transition(state State) {
	cb.state = state
	cb.lastStateChange = time.Now()
	cb.failures = 0
	cb.successes = 0
	cb.totalCalls = 0
	cb.consecutiveFails = 0
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats is a point-in-time snapshot of one breaker, as served by the source
// health endpoint.
type Stats struct {
	Name             string    `json:"name"`
	State            State     `json:"state"`
	Failures         int       `json:"failures"`
	Successes        int       `json:"successes"`
	TotalCalls       int       `json:"totalCalls"`
	ConsecutiveFails int       `json:"consecutiveFails"`
	FailureRate      float64   `json:"failureRate"`
	LastFailureTime  time.Time `json:"lastFailureTime"`
	LastStateChange  time.Time `json:"lastStateChange"`
}

// GetStats returns a snapshot of the breaker's counters
func (cb *CircuitBreaker) GetStats() *Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return &Stats{
		Name:             cb.name,
		State:            cb.state,
		Failures:         cb.failures,
		Successes:        cb.successes,
		TotalCalls:       cb.totalCalls,
		ConsecutiveFails: cb.consecutiveFails,
		FailureRate:      cb.failureRate(),
		LastFailureTime:  cb.lastFailureTime,
		LastStateChange:  cb.lastStateChange,
	}
}
