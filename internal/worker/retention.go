package worker

import (
	"context"
	"log/slog"
	"time"
)

const retentionInterval = time.Hour

// PruneStore is the persistence interface consumed by RetentionWorker.
type PruneStore interface {
	PruneRuns(ctx context.Context, before time.Time) (int64, error)
}

// RetentionWorker periodically deletes run history older than maxAge.
type RetentionWorker struct {
	store  PruneStore
	maxAge time.Duration
	now    func() time.Time
}

// NewRetentionWorker creates a RetentionWorker.
func NewRetentionWorker(store PruneStore, maxAge time.Duration) *RetentionWorker {
	return &RetentionWorker{store: store, maxAge: maxAge, now: time.Now}
}

// Name returns the worker identifier.
func (w *RetentionWorker) Name() string { return "run_retention" }

// Run prunes once at start and then every hour until ctx is cancelled.
func (w *RetentionWorker) Run(ctx context.Context) error {
	w.prune(ctx)

	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.prune(ctx)
		}
	}
}

func (w *RetentionWorker) prune(ctx context.Context) {
	before := w.now().Add(-w.maxAge)
	n, err := w.store.PruneRuns(ctx, before)
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "run retention failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if n > 0 {
		slog.LogAttrs(ctx, slog.LevelInfo, "pruned job runs",
			slog.Int64("count", n),
			slog.Time("before", before),
		)
	}
}
