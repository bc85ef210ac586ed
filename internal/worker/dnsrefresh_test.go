package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingRefresher struct {
	calls       atomic.Int32
	clearUnused atomic.Bool
}

func (r *countingRefresher) Refresh(clearUnused bool) {
	r.clearUnused.Store(clearUnused)
	r.calls.Add(1)
}

func TestDNSRefreshWorker(t *testing.T) {
	t.Parallel()
	r := &countingRefresher{}
	w := NewDNSRefreshWorker(r, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run returned %v, want nil", err)
	}

	if r.calls.Load() == 0 {
		t.Error("resolver was never refreshed")
	}
	if !r.clearUnused.Load() {
		t.Error("refresh should clear unused entries")
	}
	if w.Name() != "dns_refresh" {
		t.Errorf("Name() = %q", w.Name())
	}
}
