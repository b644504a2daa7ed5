// Package circuitbreaker guards calls to the outside services the cargo
// engine depends on: the SMS gateway and the document store.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

type Config struct {
	Name        string
	MaxFailures int
	Timeout     time.Duration
	MaxRequests int
	// IsFailure decides which errors count against the remote side. A
	// rejected request (bad phone number, missing document) says nothing
	// about the remote's health. Nil counts every error.
	IsFailure     func(error) bool
	OnStateChange func(name string, from State, to State)
}

type CircuitBreaker struct {
	name          string
	maxFailures   int
	timeout       time.Duration
	maxRequests   int
	isFailure     func(error) bool
	onStateChange func(name string, from State, to State)
	now           func() time.Time

	mutex        sync.Mutex
	state        State
	failures     int
	requests     int
	lastFailTime time.Time

	totalRequests   int64
	totalFailures   int64
	totalSuccesses  int64
	totalRejected   int64
	stateChanges    int64
	lastStateChange time.Time

	logger *logrus.Logger
}

type bound struct {
	field      string
	value, def int64
	max        int64
}

func New(config Config, logger *logrus.Logger) *CircuitBreaker {
	if config.Name == "" {
		config.Name = "unnamed"
		logger.Warn("Circuit breaker created without name, using 'unnamed'")
	}
	maxFailures := sanitize(logger, config.Name, bound{"MaxFailures", int64(config.MaxFailures), 5, 1000})
	timeout := sanitize(logger, config.Name, bound{"Timeout", int64(config.Timeout), int64(30 * time.Second), int64(10 * time.Minute)})
	maxRequests := sanitize(logger, config.Name, bound{"MaxRequests", int64(config.MaxRequests), 1, 100})

	return &CircuitBreaker{
		name:          config.Name,
		maxFailures:   int(maxFailures),
		timeout:       time.Duration(timeout),
		maxRequests:   int(maxRequests),
		isFailure:     config.IsFailure,
		onStateChange: config.OnStateChange,
		now:           time.Now,
		state:         StateClosed,
		logger:        logger,
	}
}

// sanitize falls back to the default for non-positive values and caps the
// rest at max.
func sanitize(logger *logrus.Logger, name string, b bound) int64 {
	fields := logrus.Fields{"circuit_breaker": name, "field": b.field, "invalid_value": b.value}
	switch {
	case b.value <= 0:
		logger.WithFields(fields).WithField("default_value", b.def).Warn("Invalid circuit breaker setting, using default")
		return b.def
	case b.value > b.max:
		logger.WithFields(fields).WithField("max_allowed", b.max).Warn("Circuit breaker setting too high, capping at maximum")
		return b.max
	}
	return b.value
}

// Execute runs fn unless the breaker is open. A call cut short by the
// caller's context is not held against the remote side.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)

	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	switch {
	case err == nil:
		cb.totalSuccesses++
		cb.onSuccess()
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		cb.release()
	case cb.isFailure != nil && !cb.isFailure(err):
		cb.totalSuccesses++
		cb.onSuccess()
	default:
		cb.totalFailures++
		cb.onFailure()
	}
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailTime) <= cb.timeout {
			cb.totalRejected++
			return ErrCircuitBreakerOpen
		}
		cb.setState(StateHalfOpen)
		cb.requests = 0
	}
	if cb.state == StateHalfOpen && cb.requests >= cb.maxRequests {
		cb.totalRejected++
		cb.logger.WithFields(logrus.Fields{
			"circuit_breaker": cb.name,
			"requests":        cb.requests,
			"max_requests":    cb.maxRequests,
		}).Debug("Circuit breaker half-open max requests reached")
		return ErrCircuitBreakerOpen
	}

	cb.totalRequests++
	if cb.state == StateHalfOpen {
		cb.requests++
	}
	return nil
}

// release gives back a half-open probe slot without judging the remote.
func (cb *CircuitBreaker) release() {
	if cb.state == StateHalfOpen && cb.requests > 0 {
		cb.requests--
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
		cb.requests = 0
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailTime = cb.now()

	if (cb.state == StateClosed && cb.failures >= cb.maxFailures) || cb.state == StateHalfOpen {
		cb.setState(StateOpen)
		cb.requests = 0
	}
}

func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState
	cb.stateChanges++
	cb.lastStateChange = cb.now()

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"from_state":      oldState.String(),
		"to_state":        newState.String(),
	}).Info("Circuit breaker state changed")

	if cb.onStateChange != nil {
		go cb.notifyStateChange(oldState, newState)
	}
}

func (cb *CircuitBreaker) notifyStateChange(from, to State) {
	defer func() {
		if r := recover(); r != nil {
			cb.logger.WithFields(logrus.Fields{
				"circuit_breaker": cb.name,
				"from_state":      from.String(),
				"to_state":        to.String(),
				"panic":           r,
			}).Error("Circuit breaker state change callback panicked")
		}
	}()
	cb.onStateChange(cb.name, from, to)
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

type Snapshot struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	Failures        int       `json:"failures"`
	TotalRequests   int64     `json:"total_requests"`
	TotalFailures   int64     `json:"total_failures"`
	TotalSuccesses  int64     `json:"total_successes"`
	TotalRejected   int64     `json:"total_rejected"`
	StateChanges    int64     `json:"state_changes"`
	LastFailure     time.Time `json:"last_failure,omitempty"`
	LastStateChange time.Time `json:"last_state_change,omitempty"`
}

func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return Snapshot{
		Name:            cb.name,
		State:           cb.state,
		Failures:        cb.failures,
		TotalRequests:   cb.totalRequests,
		TotalFailures:   cb.totalFailures,
		TotalSuccesses:  cb.totalSuccesses,
		TotalRejected:   cb.totalRejected,
		StateChanges:    cb.stateChanges,
		LastFailure:     cb.lastFailTime,
		LastStateChange: cb.lastStateChange,
	}
}

func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.setState(StateClosed)
	cb.failures = 0
	cb.requests = 0
	cb.lastFailTime = time.Time{}
}

func (cb *CircuitBreaker) String() string {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return fmt.Sprintf("CircuitBreaker(name=%s, state=%s, failures=%d/%d)",
		cb.name, cb.state, cb.failures, cb.maxFailures)
}
