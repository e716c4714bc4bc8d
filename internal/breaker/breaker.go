// Package breaker implements a three-state circuit breaker used to
// protect upstream targets. One Breaker instance guards one logical
// upstream endpoint; state transitions are atomic under concurrent use.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker rejects a call without invoking
// the wrapped operation.
var ErrOpen = errors.New("circuit breaker open")

// State is the breaker's position in its lifecycle.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Breaker wraps fallible operations against a single upstream target.
type Breaker struct {
	mu                  sync.Mutex
	failureThreshold    int
	cooldown            time.Duration
	state               State
	consecutiveFailures int
	lastFailure         time.Time
	probing             bool // a half-open trial call is in flight

	now func() time.Time
}

// New creates a closed breaker. threshold is the number of consecutive
// failures that opens it; cooldown is how long it stays open before
// admitting a single trial call.
func New(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		failureThreshold: threshold,
		cooldown:         cooldown,
		state:            StateClosed,
		now:              time.Now,
	}
}

// Do runs fn through the breaker. When the breaker is open (or a
// half-open probe is already in flight) it returns ErrOpen without
// invoking fn. fn's error outcome drives the state machine.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn()
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// State returns the current state, accounting for cooldown expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.lastFailure) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// admit decides whether a call may proceed, transitioning OPEN to
// HALF_OPEN after the cooldown and admitting exactly one probe.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.lastFailure) < b.cooldown {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	b.consecutiveFailures = 0
	b.state = StateClosed
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	b.lastFailure = b.now()

	if b.state == StateHalfOpen {
		b.state = StateOpen
		return
	}

	b.consecutiveFailures++
	if b.consecutiveFailures >= b.failureThreshold {
		b.state = StateOpen
	}
}
