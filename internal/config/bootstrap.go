package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	idx "github.com/riskteria/idx-bei/internal"
	"github.com/riskteria/idx-bei/internal/storage"
)

// Bootstrap makes the stored jobs match the config file: configured jobs
// are inserted or updated and stored jobs missing from the file are
// deleted. Run history of deleted jobs is kept.
func Bootstrap(ctx context.Context, cfg *Config, store storage.JobStore) error {
	want := make(map[string]bool, len(cfg.Jobs))
	for _, e := range cfg.Jobs {
		job := e.Job()
		if err := store.UpsertJob(ctx, job); err != nil {
			return err
		}
		want[job.Name] = true
		slog.LogAttrs(ctx, slog.LevelInfo, "bootstrapped job",
			slog.String("name", job.Name),
			slog.String("url", job.URL),
		)
	}

	stored, err := store.ListJobs(ctx)
	if err != nil {
		return err
	}
	for _, j := range stored {
		if want[j.Name] {
			continue
		}
		if err := store.DeleteJob(ctx, j.Name); err != nil && !errors.Is(err, idx.ErrNotFound) {
			return fmt.Errorf("remove job %s: %w", j.Name, err)
		}
		slog.LogAttrs(ctx, slog.LevelInfo, "removed job", slog.String("name", j.Name))
	}
	return nil
}

// Job converts the entry to a domain job. An empty output defaults to
// "<name>.json".
func (e JobEntry) Job() *idx.Job {
	out := e.Output
	if out == "" {
		out = e.Name + ".json"
	}
	job := &idx.Job{
		Name:     e.Name,
		URL:      e.URL,
		Output:   out,
		CacheTTL: e.CacheTTL,
		Headers:  HeaderMap(e.Headers),
		Merge:    e.Merge,
	}
	if e.Each != nil {
		job.Each = &idx.Each{Source: e.Each.Source, Path: e.Each.Path}
	}
	if p := e.Paginate; p != nil {
		job.Paginate = &idx.Paginate{Param: p.Param, DataPath: p.DataPath, Start: 1}
		if job.Paginate.DataPath == "" {
			job.Paginate.DataPath = "data"
		}
		if p.Start != nil {
			job.Paginate.Start = *p.Start
		}
	}
	return job
}

// HeaderMap converts a YAML string map into canonicalized http.Header.
func HeaderMap(m map[string]string) http.Header {
	if len(m) == 0 {
		return nil
	}
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}
