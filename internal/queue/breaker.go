package queue

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's current position.
type BreakerState string

const (
	// BreakerClosed means the backing store is considered healthy.
	BreakerClosed BreakerState = "closed"
	// BreakerOpen means the backing store recently errored; operations are
	// suppressed until the cool-down elapses.
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen means the cool-down elapsed and one probe operation
	// is allowed through to test the store.
	BreakerHalfOpen BreakerState = "half-open"
)

// breaker is a three-state circuit breaker guarding the backing store.
// Transitions: store error -> open; cool-down elapsed -> half-open probe;
// probe success -> closed; probe failure -> open again.
type breaker struct {
	mu       sync.Mutex
	state    BreakerState
	cooldown time.Duration
	openedAt time.Time
	now      func() time.Time
}

func newBreaker(cooldown time.Duration, now func() time.Time) *breaker {
	if now == nil {
		now = time.Now
	}
	return &breaker{state: BreakerClosed, cooldown: cooldown, now: now}
}

// Allow reports whether an operation may hit the store right now. While
// open it returns false until the cool-down elapses, at which point it
// moves to half-open and admits a single probe.
func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed, BreakerHalfOpen:
		return true
	case BreakerOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	}
	return true
}

// Success records a healthy store operation.
func (b *breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
}

// Fail records a store error and opens the circuit.
func (b *breaker) Fail() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerOpen
	b.openedAt = b.now()
}

// State returns the current state.
func (b *breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
