package resilience

import (
	"errors"
	"sync"
	"time"
)

type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreaker fails fast after failureThreshold consecutive failures and
// probes recovery with a single call after resetTimeout.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            BreakerState
	consecutiveFails int
	failureThreshold int
	resetTimeout     time.Duration
	openedAt         time.Time
	probeInFlight    bool
	now              func() time.Time
}

func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed. In half-open only one probe at a
// time is admitted.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
			cb.state = StateHalfOpen
			cb.probeInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true
	}
	return false
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails = 0
	cb.probeInFlight = false
	cb.state = StateClosed
}

// RecordCancellation abandons a call whose outcome says nothing about the
// endpoint, such as a caller-cancelled context. A half-open probe slot is
// released so the next call may probe again.
func (cb *CircuitBreaker) RecordCancellation() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probeInFlight = false
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probeInFlight = false
	if cb.state == StateHalfOpen {
		cb.trip()
		return
	}
	cb.consecutiveFails++
	if cb.consecutiveFails >= cb.failureThreshold {
		cb.trip()
	}
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.consecutiveFails = 0
}
