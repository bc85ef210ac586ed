package worker

import (
	"context"
	"time"
)

// Refresher is implemented by *dnscache.Resolver.
type Refresher interface {
	Refresh(clearUnused bool)
}

// DNSRefreshWorker re-resolves cached hostnames on an interval and drops
// entries that went unused since the previous refresh.
type DNSRefreshWorker struct {
	resolver Refresher
	interval time.Duration
}

// NewDNSRefreshWorker creates a DNSRefreshWorker.
func NewDNSRefreshWorker(resolver Refresher, interval time.Duration) *DNSRefreshWorker {
	return &DNSRefreshWorker{resolver: resolver, interval: interval}
}

// Name returns the worker identifier.
func (w *DNSRefreshWorker) Name() string { return "dns_refresh" }

// Run blocks until ctx is cancelled.
func (w *DNSRefreshWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.resolver.Refresh(true)
		}
	}
}
