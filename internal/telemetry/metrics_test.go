package telemetry

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues("POST", "/admin/cache/clear", "204").Inc()
	m.RequestDuration.WithLabelValues("POST", "/admin/cache/clear").Observe(0.01)
	m.ActiveRequests.Set(2)
	m.FetchTotal.WithLabelValues("hit").Inc()
	m.CacheHits.Inc()
	m.CacheMisses.Inc()
	m.UpstreamDuration.WithLabelValues("200").Observe(0.2)
	m.UpstreamErrors.WithLabelValues("503").Inc()
	m.Retries.Inc()
	m.RateLimitWait.Observe(0.5)
	m.JobRuns.WithLabelValues("broker-search", "ok").Inc()
	m.JobDuration.WithLabelValues("broker-search").Observe(1.5)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	want := []string{
		"idx_requests_total",
		"idx_request_duration_seconds",
		"idx_active_requests",
		"idx_fetch_total",
		"idx_cache_hits_total",
		"idx_cache_misses_total",
		"idx_upstream_duration_seconds",
		"idx_upstream_errors_total",
		"idx_retries_total",
		"idx_ratelimit_wait_seconds",
		"idx_job_runs_total",
		"idx_job_duration_seconds",
	}
	for _, name := range want {
		if !names[name] {
			t.Errorf("missing metric %q in gathered families", name)
		}
	}
}

func TestRegisterGauge(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	depth := 3
	if err := RegisterGauge(reg, "ratelimit_queue", "Callers waiting for admission.", func() int { return depth }); err != nil {
		t.Fatal(err)
	}

	expected := `
# HELP idx_ratelimit_queue Callers waiting for admission.
# TYPE idx_ratelimit_queue gauge
idx_ratelimit_queue 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "idx_ratelimit_queue"); err != nil {
		t.Error(err)
	}

	if err := RegisterGauge(reg, "ratelimit_queue", "again", func() int { return 0 }); err == nil {
		t.Error("duplicate registration should fail")
	}
}
