package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePruneStore struct {
	mu      sync.Mutex
	befores []time.Time
	err     error
}

func (s *fakePruneStore) PruneRuns(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.befores = append(s.befores, before)
	return 3, s.err
}

func TestRetentionWorker_PrunesOnStart(t *testing.T) {
	t.Parallel()
	store := &fakePruneStore{}
	w := NewRetentionWorker(store, 48*time.Hour)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatal(err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.befores) != 1 {
		t.Fatalf("prune calls = %d, want 1", len(store.befores))
	}
	if want := now.Add(-48 * time.Hour); !store.befores[0].Equal(want) {
		t.Errorf("cutoff = %s, want %s", store.befores[0], want)
	}
}

func TestRetentionWorker_ErrorDoesNotStop(t *testing.T) {
	t.Parallel()
	store := &fakePruneStore{err: errors.New("disk I/O error")}
	w := NewRetentionWorker(store, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Errorf("Run returned %v, want nil", err)
	}
}
