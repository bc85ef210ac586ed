// Package server implements the admin and operations HTTP surface of the
// IDX collector.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	idx "github.com/riskteria/idx-bei/internal"
	"github.com/riskteria/idx-bei/internal/ratelimit"
	"github.com/riskteria/idx-bei/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// FetchControl is the part of the fetch client the admin API drives.
type FetchControl interface {
	ClearCache(ctx context.Context)
	RateLimit() ratelimit.Limits
	SetRateLimit(limits ratelimit.Limits) error
	PendingAdmissions() int
}

// JobRunner runs a named collector job.
type JobRunner interface {
	RunJob(ctx context.Context, name string) (*idx.JobRun, error)
}

// Store is the read side of job and run persistence.
type Store interface {
	GetJob(ctx context.Context, name string) (*idx.Job, error)
	ListJobs(ctx context.Context) ([]*idx.Job, error)
	ListRuns(ctx context.Context, f idx.RunFilter) ([]*idx.JobRun, error)
	LastRun(ctx context.Context, job string) (*idx.JobRun, error)
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Fetch          FetchControl
	Jobs           JobRunner
	Store          Store
	AdminKey       string                 // empty = admin routes unauthenticated
	ReadyCheck     ReadyChecker           // nil = always ready (for tests)
	Metrics        *telemetry.Metrics     // nil = no request metrics
	MetricsHandler http.Handler           // nil = no /metrics route
	BaseContext    func() context.Context // parent of background job runs; nil = context.Background
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// System endpoints (no auth)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/cache/clear", s.handleClearCache)
		r.Get("/ratelimit", s.handleGetRateLimit)
		r.Put("/ratelimit", s.handleSetRateLimit)

		r.Get("/jobs", s.handleListJobs)
		r.Post("/jobs/{name}/run", s.handleRunJob)
		r.Get("/runs", s.handleListRuns)
	})

	return r
}

type server struct {
	deps Deps
}

func (s *server) baseContext() context.Context {
	if s.deps.BaseContext != nil {
		return s.deps.BaseContext()
	}
	return context.Background()
}
