// Package resilience guards calls to a remote document server so that a node
// which keeps failing is given time to recover instead of being hammered.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the position of a Breaker in its closed/open/half-open cycle.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets a single probe call through.
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
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrOpen is returned without invoking the guarded call while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

// Classifier reports whether err says the remote side is unhealthy.
// Errors that describe the request itself (a missing document, a stale
// revision) should not be classified as failures.
type Classifier func(err error) bool

// Breaker counts consecutive failures and opens after Threshold of them.
// A zero Threshold disables the breaker.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	isFailure Classifier
	now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a breaker. A nil classifier treats every non-nil error
// other than a caller cancellation as a failure.
func NewBreaker(threshold int, cooldown time.Duration, isFailure Classifier) *Breaker {
	if isFailure == nil {
		isFailure = func(err error) bool { return err != nil }
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		isFailure: isFailure,
		now:       time.Now,
	}
}

// Do runs fn unless the breaker is open.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if b == nil || b.threshold <= 0 {
		return fn(ctx)
	}
	if err := b.acquire(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(ctx, err)
	return err
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
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
	}
	return nil
}

func (b *Breaker) record(ctx context.Context, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A call abandoned by its caller says nothing about the server.
	if err != nil && ctx.Err() != nil {
		if b.state == StateHalfOpen {
			b.probing = false
		}
		return
	}

	if err == nil || !b.isFailure(err) {
		b.state = StateClosed
		b.failures = 0
		b.probing = false
		return
	}

	if b.state == StateHalfOpen {
		b.trip()
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
	b.probing = false
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count while closed.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probing = false
}
