package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"
)

// entry wraps a cached value with its expiration time.
type entry[V any] struct {
	val       V
	expiresAt time.Time
}

// Memory is an in-memory W-TinyLFU cache backed by otter.
// Expiry is tracked per entry and enforced lazily on read; otter only
// bounds the entry count.
type Memory[V any] struct {
	cache *otter.Cache[string, entry[V]]
	now   func() time.Time
}

// NewMemory creates an in-memory cache holding at most maxSize entries.
func NewMemory[V any](maxSize int) (*Memory[V], error) {
	c, err := otter.New(&otter.Options[string, entry[V]]{
		MaximumSize: maxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Memory[V]{cache: c, now: time.Now}, nil
}

// Get retrieves a value from the cache if present and not expired.
// An expired entry is removed on the read that observes it.
func (m *Memory[V]) Get(_ context.Context, key string) (V, bool) {
	e, ok := m.cache.GetIfPresent(key)
	if !ok {
		var zero V
		return zero, false
	}
	if !m.now().Before(e.expiresAt) {
		m.cache.Invalidate(key)
		var zero V
		return zero, false
	}
	return e.val, true
}

// Set stores a value with per-entry TTL.
func (m *Memory[V]) Set(_ context.Context, key string, val V, ttl time.Duration) {
	m.cache.Set(key, entry[V]{
		val:       val,
		expiresAt: m.now().Add(ttl),
	})
}

// Purge removes all values from the cache.
func (m *Memory[V]) Purge(_ context.Context) {
	m.cache.InvalidateAll()
}

// Len returns the approximate number of stored entries, expired ones included.
func (m *Memory[V]) Len() int {
	return m.cache.EstimatedSize()
}
