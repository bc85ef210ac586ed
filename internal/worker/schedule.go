package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/riskteria/idx-bei/internal/app"
)

// JobRunner runs every collector job once.
type JobRunner interface {
	RunAll(ctx context.Context) (app.Summary, error)
}

// ScheduleWorker runs the collector immediately and then once per interval.
type ScheduleWorker struct {
	runner   JobRunner
	interval time.Duration
}

// NewScheduleWorker creates a ScheduleWorker.
func NewScheduleWorker(runner JobRunner, interval time.Duration) *ScheduleWorker {
	return &ScheduleWorker{runner: runner, interval: interval}
}

// Name returns the worker identifier.
func (w *ScheduleWorker) Name() string { return "schedule" }

// Run collects until ctx is cancelled. Job failures are logged and the
// schedule continues.
func (w *ScheduleWorker) Run(ctx context.Context) error {
	w.collect(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.collect(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *ScheduleWorker) collect(ctx context.Context) {
	start := time.Now()
	sum, err := w.runner.RunAll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.LogAttrs(ctx, slog.LevelError, "scheduled collection failed",
				slog.String("error", err.Error()),
			)
		}
		return
	}
	level := slog.LevelInfo
	if sum.Failed > 0 {
		level = slog.LevelWarn
	}
	slog.LogAttrs(ctx, level, "scheduled collection finished",
		slog.Int("jobs", len(sum.Runs)),
		slog.Int("failed", sum.Failed),
		slog.Duration("duration", time.Since(start)),
		slog.Time("next", time.Now().Add(w.interval)),
	)
}
