// Package cache holds decoded upstream responses between fetches.
package cache

import (
	"context"
	"time"
)

// Cache maps a request key to a value of type V. A zero or negative ttl
// in Set means the entry is never served.
//
// Implementations must be safe for concurrent use. Get reports false for
// entries past their ttl even when they have not been evicted yet.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Set(ctx context.Context, key string, val V, ttl time.Duration)
	// Purge drops every entry.
	Purge(ctx context.Context)
}
