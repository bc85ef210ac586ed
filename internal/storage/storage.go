// Package storage defines persistence interfaces for the collector.
package storage

import (
	"context"
	"time"

	idx "github.com/riskteria/idx-bei/internal"
)

// JobStore manages collector job definitions.
type JobStore interface {
	UpsertJob(ctx context.Context, job *idx.Job) error
	GetJob(ctx context.Context, name string) (*idx.Job, error)
	ListJobs(ctx context.Context) ([]*idx.Job, error)
	DeleteJob(ctx context.Context, name string) error
}

// RunStore manages job run history.
type RunStore interface {
	InsertRun(ctx context.Context, run *idx.JobRun) error
	ListRuns(ctx context.Context, f idx.RunFilter) ([]*idx.JobRun, error)
	LastRun(ctx context.Context, job string) (*idx.JobRun, error)
	PruneRuns(ctx context.Context, before time.Time) (int64, error)
}

// Store combines all storage interfaces.
type Store interface {
	JobStore
	RunStore
	Ping(ctx context.Context) error
	Close() error
}
