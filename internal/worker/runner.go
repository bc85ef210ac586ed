package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner supervises a fixed set of workers.
type Runner struct {
	workers []Worker
}

func NewRunner(workers ...Worker) *Runner {
	return &Runner{workers: workers}
}

// Run blocks until every worker has returned. The first failure cancels
// the rest and is returned prefixed with the failing worker's name.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		name := w.Name()
		g.Go(func() error {
			start := time.Now()
			slog.LogAttrs(gctx, slog.LevelInfo, "worker started", slog.String("worker", name))
			err := w.Run(gctx)
			slog.LogAttrs(gctx, slog.LevelInfo, "worker stopped",
				slog.String("worker", name),
				slog.Duration("uptime", time.Since(start)),
				slog.Bool("failed", err != nil),
			)
			if err != nil {
				return fmt.Errorf("worker %s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
