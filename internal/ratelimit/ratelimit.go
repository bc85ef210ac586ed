// Package ratelimit implements FIFO, batch-paced admission control.
//
// Callers queue for admission; a drain goroutine admits up to MaxRequests
// queued callers, then waits for the window to roll over before admitting
// the next batch. Under sustained load this yields bursts of MaxRequests
// every Window rather than evenly spread requests.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidLimits is returned when MaxRequests or Window is not positive.
var ErrInvalidLimits = errors.New("ratelimit: max requests and window must be positive")

// Limits configures admission: at most MaxRequests per Window.
type Limits struct {
	MaxRequests int           `json:"max_requests"`
	Window      time.Duration `json:"window"`
}

// DefaultLimits admits five requests per second.
func DefaultLimits() Limits {
	return Limits{MaxRequests: 5, Window: time.Second}
}

// Validate reports whether both limits are positive.
func (l Limits) Validate() error {
	if l.MaxRequests <= 0 || l.Window <= 0 {
		return fmt.Errorf("%w (got %d per %s)", ErrInvalidLimits, l.MaxRequests, l.Window)
	}
	return nil
}

// ticket is one queued admission request.
type ticket struct {
	ready    chan struct{}
	admitted bool
	canceled bool
}

// Limiter admits callers in arrival order. It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	limits   Limits
	queue    []*ticket
	draining bool
	// recent holds admission times still inside the trailing window,
	// oldest first.
	recent []time.Time
}

// New creates a Limiter with the given limits.
func New(limits Limits) (*Limiter, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{limits: limits}, nil
}

// Wait blocks until the caller is admitted or ctx is done. A caller whose
// context ends while queued gives up its place without consuming capacity.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &ticket{ready: make(chan struct{})}
	l.enqueue(t)

	select {
	case <-t.ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		defer l.mu.Unlock()
		if t.admitted {
			return nil
		}
		t.canceled = true
		return ctx.Err()
	}
}

// enqueue appends t and starts the drain loop if it is idle.
func (l *Limiter) enqueue(t *ticket) {
	l.mu.Lock()
	l.queue = append(l.queue, t)
	if !l.draining {
		l.draining = true
		go l.drain()
	}
	l.mu.Unlock()
}

// drain admits queued tickets batch by batch and exits once the queue is
// empty. Limits are re-read on every iteration.
func (l *Limiter) drain() {
	for {
		l.mu.Lock()
		limits := l.limits
		now := time.Now()
		l.expire(now, limits.Window)

		for len(l.queue) > 0 && len(l.recent) < limits.MaxRequests {
			t := l.pop()
			if t.canceled {
				continue
			}
			t.admitted = true
			close(t.ready)
			l.recent = append(l.recent, now)
		}
		for len(l.queue) > 0 && l.queue[0].canceled {
			l.pop()
		}
		if len(l.queue) == 0 {
			l.draining = false
			l.mu.Unlock()
			return
		}

		// Window is full: sleep until its oldest admission ages out.
		wait := l.recent[0].Add(limits.Window).Sub(now)
		l.mu.Unlock()

		if wait > 0 {
			time.Sleep(wait)
		}
	}
}

// expire drops admissions older than the trailing window. Caller holds mu.
func (l *Limiter) expire(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(l.recent) && !l.recent[i].After(cutoff) {
		i++
	}
	l.recent = l.recent[i:]
}

// pop removes the head ticket. Caller holds mu.
func (l *Limiter) pop() *ticket {
	t := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return t
}

// SetLimits replaces the limits. Queued callers are evaluated against the
// new values on the next window evaluation.
func (l *Limiter) SetLimits(limits Limits) error {
	if err := limits.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	l.limits = limits
	l.mu.Unlock()
	return nil
}

// Limits returns the current limits.
func (l *Limiter) Limits() Limits {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limits
}

// Pending returns the number of callers waiting for admission.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, t := range l.queue {
		if !t.canceled {
			n++
		}
	}
	return n
}
