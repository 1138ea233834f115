package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Call while the breaker rejects attempts.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	StateClosed   CircuitState = iota // Normal operation
	StateOpen                         // Attempts fail immediately
	StateHalfOpen                     // Probing whether the endpoint recovered
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards session opens against an endpoint that keeps
// rejecting them. After maxFailures consecutive failed opens it rejects
// further attempts for resetTimeout, then lets trial calls through.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int // successful trial calls needed to close again

	mu                sync.RWMutex
	state             CircuitState
	failureCount      int
	lastFailTime      time.Time
	halfOpenInFlight  int
	successCount      int
	requestCount      int64
	failureCountTotal int64
	onStateChange     func(name string, from, to CircuitState)
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		halfOpenMax:  1,
		state:        StateClosed,
	}
}

// Name returns the label the breaker was created with.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// OnStateChange registers a callback invoked on every transition. It runs
// with the breaker's lock held and must not call back into the breaker.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Call executes fn with circuit breaker protection
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn()
	cb.recordResult(err == nil)
	return err
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(cb.lastFailTime) < cb.resetTimeout {
			return false
		}
		cb.transition(StateHalfOpen)
		cb.halfOpenInFlight = 1
		return true

	case StateHalfOpen:
		if cb.halfOpenInFlight < cb.halfOpenMax {
			cb.halfOpenInFlight++
			return true
		}
		return false
	}

	return false
}

func (cb *CircuitBreaker) recordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requestCount++

	if success {
		cb.recordSuccess()
	} else {
		cb.recordFailure()
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0

	case StateHalfOpen:
		cb.successCount++
		if cb.halfOpenInFlight > 0 {
			cb.halfOpenInFlight--
		}
		if cb.successCount >= cb.halfOpenMax {
			cb.transition(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failureCountTotal++
	cb.lastFailTime = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.maxFailures {
			cb.transition(StateOpen)
		}

	case StateHalfOpen:
		// a failed trial call reopens immediately
		cb.transition(StateOpen)
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.failureCount = 0
	cb.halfOpenInFlight = 0
	cb.successCount = 0
	if from != to && cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() (state CircuitState, requestCount, failureCount int64, failureRate float64) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	state = cb.state
	requestCount = cb.requestCount
	failureCount = cb.failureCountTotal

	if requestCount > 0 {
		failureRate = float64(failureCount) / float64(requestCount) * 100.0
	}

	return
}
