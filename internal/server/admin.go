package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	idx "github.com/riskteria/idx-bei/internal"
	"github.com/riskteria/idx-bei/internal/ratelimit"
)

// maxAdminBody is the maximum allowed admin request body size (1 MB).
const maxAdminBody = 1 << 20

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func errorResponse(msg string) apiError {
	var e apiError
	e.Error.Message = msg
	return e
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, idx.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, idx.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, idx.ErrBadRequest), errors.Is(err, ratelimit.ErrInvalidLimits):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// jsonCT is a pre-allocated header value slice for direct map assignment.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps err to a status. Server-side failures are logged in full
// and answered with a sanitized message so SQLite errors do not leak.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	switch status {
	case http.StatusUnauthorized:
		writeJSON(w, status, errorResponse("unauthorized"))
	case http.StatusNotFound:
		writeJSON(w, status, errorResponse("not found"))
	case http.StatusBadRequest:
		writeJSON(w, status, errorResponse(err.Error()))
	default:
		slog.LogAttrs(r.Context(), slog.LevelError, "admin error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, status, errorResponse("internal error"))
	}
}

// decodeJSON limits body size, decodes JSON into v, and writes a 400 on error.
// Returns true if decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxAdminBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return false
	}
	return true
}

// --- Pagination helpers ---

type pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

type listResponse struct {
	Data       any        `json:"data"`
	Pagination pagination `json:"pagination"`
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

// parsePagination reads offset and limit. A missing or non-positive limit
// becomes 50 and larger ones are clamped to 100.
func parsePagination(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultPageLimit
	}
	limit = min(limit, maxPageLimit)
	offset = max(offset, 0)
	return
}

// --- Fetch client ---

func (s *server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.deps.Fetch.ClearCache(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// rateLimitBody is the wire form of ratelimit.Limits. Window uses Go
// duration syntax ("1s", "500ms").
type rateLimitBody struct {
	MaxRequests int    `json:"max_requests"`
	Window      string `json:"window"`
	Pending     int    `json:"pending"`
}

func (s *server) rateLimitView() rateLimitBody {
	l := s.deps.Fetch.RateLimit()
	return rateLimitBody{
		MaxRequests: l.MaxRequests,
		Window:      l.Window.String(),
		Pending:     s.deps.Fetch.PendingAdmissions(),
	}
}

func (s *server) handleGetRateLimit(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.rateLimitView())
}

func (s *server) handleSetRateLimit(w http.ResponseWriter, r *http.Request) {
	var req rateLimitBody
	if !decodeJSON(w, r, &req) {
		return
	}
	window, err := time.ParseDuration(req.Window)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid window, use Go duration syntax"))
		return
	}
	if err := s.deps.Fetch.SetRateLimit(ratelimit.Limits{MaxRequests: req.MaxRequests, Window: window}); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.rateLimitView())
}

// --- Jobs ---

type jobView struct {
	*idx.Job
	LastRun *idx.JobRun `json:"last_run,omitempty"`
}

func (s *server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.deps.Store.ListJobs(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		last, err := s.deps.Store.LastRun(r.Context(), j.Name)
		if err != nil && !errors.Is(err, idx.ErrNotFound) {
			writeError(w, r, err)
			return
		}
		out = append(out, jobView{Job: j, LastRun: last})
	}
	writeJSON(w, http.StatusOK, listResponse{
		Data:       out,
		Pagination: pagination{Offset: 0, Limit: len(out)},
	})
}

// handleRunJob starts a job run. With ?wait=true the run completes before
// the response and its record is returned; otherwise the run continues in
// the background and the response is 202.
func (s *server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))

	if wait {
		run, err := s.deps.Jobs.RunJob(r.Context(), name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, run)
		return
	}

	if _, err := s.deps.Store.GetJob(r.Context(), name); err != nil {
		writeError(w, r, err)
		return
	}
	reqID := idx.RequestIDFromContext(r.Context())
	go func() {
		ctx := idx.ContextWithRequestID(s.baseContext(), reqID)
		if _, err := s.deps.Jobs.RunJob(ctx, name); err != nil {
			slog.LogAttrs(ctx, slog.LevelError, "background job run failed",
				slog.String("job", name),
				slog.String("request_id", reqID),
				slog.String("error", err.Error()),
			)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"job": name, "status": "started"})
}

// --- Runs ---

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	offset, limit := parsePagination(r)
	runs, err := s.deps.Store.ListRuns(r.Context(), idx.RunFilter{
		Job:    r.URL.Query().Get("job"),
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*idx.JobRun{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Data:       runs,
		Pagination: pagination{Offset: offset, Limit: limit},
	})
}
