// Package resilience implements the tenant-scoped Timeout -> Retry ->
// CircuitBreaker pipeline that wraps every outbound HTTP send, hand-rolled
// on sync and time — see DESIGN.md for why no third-party circuit-breaker or
// retry dependency is used here.
package resilience

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's current state.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// Breaker is a per-tenant circuit breaker. It opens after a
// run of consecutive failures, stays open for a recovery window, then allows
// exactly one half-open trial.
type Breaker struct {
	failureThreshold int
	recoveryTimeout  time.Duration

	mu               sync.Mutex
	state            BreakerState
	consecutiveFail  int
	openedAt         time.Time
	halfOpenInFlight bool
}

// NewBreaker builds a Breaker with the given failure threshold and recovery
// window.
func NewBreaker(failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 1
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            StateClosed,
	}
}

// ErrOpen is returned by Allow when the breaker is open and the recovery
// window has not yet elapsed, or when a half-open trial is already
// in-flight.
type ErrOpen struct{}

func (ErrOpen) Error() string { return "circuit breaker open" }

// Allow decides whether a new call may proceed. On success it returns a
// commit function the caller must invoke with the outcome.
func (b *Breaker) Allow() (commit func(success bool), err error) {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) >= b.recoveryTimeout {
			b.state = StateHalfOpen
			b.halfOpenInFlight = true
			b.mu.Unlock()
			return b.commitHalfOpen, nil
		}
		b.mu.Unlock()
		return nil, ErrOpen{}
	case StateHalfOpen:
		if b.halfOpenInFlight {
			b.mu.Unlock()
			return nil, ErrOpen{}
		}
		b.halfOpenInFlight = true
		b.mu.Unlock()
		return b.commitHalfOpen, nil
	default: // StateClosed
		b.mu.Unlock()
		return b.commitClosed, nil
	}
}

func (b *Breaker) commitClosed(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.consecutiveFail = 0
		return
	}
	b.consecutiveFail++
	if b.consecutiveFail >= b.failureThreshold {
		b.state = StateOpen
		b.openedAt = time.Now()
	}
}

func (b *Breaker) commitHalfOpen(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.halfOpenInFlight = false
	if success {
		b.state = StateClosed
		b.consecutiveFail = 0
		return
	}
	b.state = StateOpen
	b.openedAt = time.Now()
}

// State returns the breaker's current state, mostly for tests/metrics.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
