package testutil

import (
	"context"
	"sync"

	"github.com/riskteria/idx-bei/internal/ratelimit"
)

// FakeFetchControl records admin operations on the fetch client.
type FakeFetchControl struct {
	mu      sync.Mutex
	limits  ratelimit.Limits
	cleared int
	pending int
}

// NewFakeFetchControl starts from ratelimit.DefaultLimits.
func NewFakeFetchControl() *FakeFetchControl {
	return &FakeFetchControl{limits: ratelimit.DefaultLimits()}
}

// ClearCache counts the call.
func (f *FakeFetchControl) ClearCache(context.Context) {
	f.mu.Lock()
	f.cleared++
	f.mu.Unlock()
}

// Cleared returns how many times ClearCache was called.
func (f *FakeFetchControl) Cleared() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

// RateLimit returns the current limits.
func (f *FakeFetchControl) RateLimit() ratelimit.Limits {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limits
}

// SetRateLimit validates and stores limits.
func (f *FakeFetchControl) SetRateLimit(l ratelimit.Limits) error {
	if err := l.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	f.limits = l
	f.mu.Unlock()
	return nil
}

// SetPending sets the value PendingAdmissions reports.
func (f *FakeFetchControl) SetPending(n int) {
	f.mu.Lock()
	f.pending = n
	f.mu.Unlock()
}

// PendingAdmissions returns the value set by SetPending.
func (f *FakeFetchControl) PendingAdmissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}
