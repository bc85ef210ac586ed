package testutil

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	idx "github.com/riskteria/idx-bei/internal"
)

// FakeStore is an in-memory implementation of storage.Store for testing.
// Runs are listed newest first, like the SQLite store.
type FakeStore struct {
	mu         sync.RWMutex
	jobs       map[string]*idx.Job
	runs       []*idx.JobRun
	lastFilter idx.RunFilter

	// Err, when set, is returned by every method.
	Err error
}

// NewFakeStore returns a FakeStore seeded with jobs.
func NewFakeStore(jobs ...*idx.Job) *FakeStore {
	s := &FakeStore{jobs: make(map[string]*idx.Job)}
	for _, j := range jobs {
		s.jobs[j.Name] = j
	}
	return s
}

// AddRun appends a run to the history.
func (s *FakeStore) AddRun(r *idx.JobRun) {
	s.mu.Lock()
	s.runs = append(s.runs, r)
	s.mu.Unlock()
}

// Runs returns a copy of the run history in insertion order.
func (s *FakeStore) Runs() []*idx.JobRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.runs)
}

// LastFilter returns the filter passed to the most recent ListRuns call.
func (s *FakeStore) LastFilter() idx.RunFilter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFilter
}

// --- JobStore ---

// UpsertJob stores a job, keeping CreatedAt of an existing one.
func (s *FakeStore) UpsertJob(_ context.Context, j *idx.Job) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if old, ok := s.jobs[j.Name]; ok {
		j.CreatedAt = old.CreatedAt
	} else {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	s.jobs[j.Name] = j
	return nil
}

// GetJob looks up a job by name.
func (s *FakeStore) GetJob(_ context.Context, name string) (*idx.Job, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[name]
	if !ok {
		return nil, idx.ErrNotFound
	}
	return j, nil
}

// ListJobs returns all jobs ordered by name.
func (s *FakeStore) ListJobs(context.Context) ([]*idx.Job, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*idx.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	slices.SortFunc(out, func(a, b *idx.Job) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// DeleteJob removes a job.
func (s *FakeStore) DeleteJob(_ context.Context, name string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; !ok {
		return idx.ErrNotFound
	}
	delete(s.jobs, name)
	return nil
}

// --- RunStore ---

// InsertRun appends a run.
func (s *FakeStore) InsertRun(_ context.Context, r *idx.JobRun) error {
	if s.Err != nil {
		return s.Err
	}
	s.AddRun(r)
	return nil
}

// ListRuns returns runs matching f, newest first.
func (s *FakeStore) ListRuns(_ context.Context, f idx.RunFilter) ([]*idx.JobRun, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = f

	var out []*idx.JobRun
	for i := len(s.runs) - 1; i >= 0; i-- {
		if f.Job == "" || s.runs[i].Job == f.Job {
			out = append(out, s.runs[i])
		}
	}
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// LastRun returns the most recent run of job.
func (s *FakeStore) LastRun(_ context.Context, job string) (*idx.JobRun, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].Job == job {
			return s.runs[i], nil
		}
	}
	return nil, idx.ErrNotFound
}

// PruneRuns drops runs that started before the cutoff.
func (s *FakeStore) PruneRuns(_ context.Context, before time.Time) (int64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.runs)
	s.runs = slices.DeleteFunc(s.runs, func(r *idx.JobRun) bool { return r.StartedAt.Before(before) })
	return int64(n - len(s.runs)), nil
}

// Ping returns Err.
func (s *FakeStore) Ping(context.Context) error { return s.Err }

// Close is a no-op.
func (s *FakeStore) Close() error { return nil }
