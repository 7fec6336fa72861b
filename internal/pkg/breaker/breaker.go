// Package breaker implements a per-dependency circuit breaker.
//
// Each external dependency (store, queue, call execution) gets its own
// breaker. After a run of consecutive failures the circuit opens and every
// call fails fast with ErrOpen until the open duration elapses; then a
// single half-open trial decides whether to close the circuit or re-open it.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned without attempting the call while the circuit is open.
var ErrOpen = errors.New("circuit breaker open")

// State is the breaker's position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Breaker guards calls to one named dependency.
type Breaker struct {
	name      string
	threshold int
	openFor   time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trialing bool

	now func() time.Time
}

// New creates a breaker that opens after threshold consecutive failures and
// stays open for openFor before allowing a half-open trial.
func New(name string, threshold int, openFor time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		name:      name,
		threshold: threshold,
		openFor:   openFor,
		now:       time.Now,
	}
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the breaker's current position, accounting for open-duration
// expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.openFor {
		return HalfOpen
	}
	return b.state
}

// Do runs fn through the breaker. While the circuit is open it fails fast
// with ErrOpen; in half-open exactly one trial call is admitted and its
// result decides whether the circuit closes or re-opens. fn's error is
// returned unchanged on failure.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err == nil)
	return err
}

// allow decides whether a call may proceed right now.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil
	case Open:
		if b.now().Sub(b.openedAt) < b.openFor {
			return fmt.Errorf("%w: %s", ErrOpen, b.name)
		}
		b.state = HalfOpen
		b.trialing = true
		return nil
	case HalfOpen:
		if b.trialing {
			// A trial is already in flight; everyone else fails fast.
			return fmt.Errorf("%w: %s", ErrOpen, b.name)
		}
		b.trialing = true
		return nil
	}
	return nil
}

// record applies a call result to the breaker state.
func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.trialing = false
		if success {
			b.state = Closed
			b.failures = 0
		} else {
			b.state = Open
			b.openedAt = b.now()
		}
		return
	}

	if success {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.state = Open
		b.openedAt = b.now()
	}
}
