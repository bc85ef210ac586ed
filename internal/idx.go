// Package idx defines domain types shared by the IDX collector.
// This package has no project imports -- it is the dependency root.
package idx

import (
	"context"
	"net/http"
	"time"
)

// --- Collector jobs ---

// Job describes one endpoint the collector fetches and writes to disk.
type Job struct {
	Name      string        `json:"name"`
	URL       string        `json:"url"`
	Output    string        `json:"output"`
	CacheTTL  time.Duration `json:"cache_ttl"`
	Headers   http.Header   `json:"headers,omitempty"`
	Merge     bool          `json:"merge"`
	Each      *Each         `json:"each,omitempty"`
	Paginate  *Paginate     `json:"paginate,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// KeyPlaceholder is replaced by each key in a fan-out job's URL.
const KeyPlaceholder = "{key}"

// Each turns a job into a fan-out: the keys found at Path (a gjson path)
// in the Source output file are substituted into the job URL one at a
// time, and the results are stored in the job output keyed by key.
// Keys already present in the output are skipped.
type Each struct {
	Source string `json:"source"`
	Path   string `json:"path"`
}

// Paginate turns a job into a paged walk: the URL is requested with the
// query parameter Param set to Start, Start+1, ... until the array at
// DataPath (a gjson path) is empty or missing. The records of every page
// are concatenated into one {"totalRecords": n, "data": [...]} document.
type Paginate struct {
	Param    string `json:"param"`
	DataPath string `json:"data_path"`
	Start    int    `json:"start"`
}

// RunStatus is the outcome of a single job run.
type RunStatus string

const (
	RunStatusOK     RunStatus = "ok"
	RunStatusFailed RunStatus = "failed"
)

// JobRun records one execution of a Job.
type JobRun struct {
	ID         string    `json:"id"`
	Job        string    `json:"job"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	Bytes      int64     `json:"bytes"`
	Output     string    `json:"output"`
	RequestID  string    `json:"request_id,omitempty"`
}

// Duration returns how long the run took.
func (r *JobRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunFilter narrows run history queries.
type RunFilter struct {
	Job    string
	Offset int
	Limit  int
}

// --- Context keys ---

type contextKey int

const ctxKeyRequestID contextKey = 0

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}
