package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"

	idx "github.com/riskteria/idx-bei/internal"
	"github.com/riskteria/idx-bei/internal/app"
	"github.com/riskteria/idx-bei/internal/cache"
	"github.com/riskteria/idx-bei/internal/config"
	"github.com/riskteria/idx-bei/internal/fetch"
	"github.com/riskteria/idx-bei/internal/ratelimit"
	"github.com/riskteria/idx-bei/internal/server"
	"github.com/riskteria/idx-bei/internal/storage/sqlite"
	"github.com/riskteria/idx-bei/internal/telemetry"
	"github.com/riskteria/idx-bei/internal/worker"
)

const dnsRefreshInterval = 5 * time.Minute

func run(configPath string, serve bool, job string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	slog.Info("starting idxfetch", "version", version, "base_url", cfg.Client.BaseURL)

	// Telemetry
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	var metrics *telemetry.Metrics
	if cfg.Telemetry.Metrics.Enabled {
		metrics = telemetry.NewMetrics(reg)
	}
	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, telemetry.TracingOptions{
			ServiceName: "idxfetch",
			Version:     version,
			Endpoint:    cfg.Telemetry.Tracing.Endpoint,
			SampleRate:  cfg.Telemetry.Tracing.SampleRate,
		})
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				slog.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	// Open database
	store, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	// Bootstrap from config
	if err := config.Bootstrap(ctx, cfg, store); err != nil {
		return err
	}

	// Wire services
	var resolver *dnscache.Resolver
	if cfg.Client.DNSCache {
		resolver = &dnscache.Resolver{}
	}
	var gauges prometheus.Registerer
	if metrics != nil {
		gauges = reg
	}
	client, err := newFetchClient(cfg, resolver, metrics, gauges)
	if err != nil {
		return err
	}

	collector := app.NewCollector(app.CollectorOptions{
		Fetcher:      client,
		Store:        store,
		Metrics:      metrics,
		OutputDir:    cfg.Collector.OutputDir,
		Concurrency:  cfg.Collector.Concurrency,
		DisableCache: !cfg.Cache.Enabled,
	})

	if !serve {
		return runOnce(ctx, collector, job)
	}

	// Create HTTP server
	handler := server.New(server.Deps{
		Fetch:          client,
		Jobs:           collector,
		Store:          store,
		AdminKey:       cfg.Auth.AdminKey,
		ReadyCheck:     store.Ping,
		Metrics:        metrics,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		BaseContext:    func() context.Context { return ctx },
	})
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	workers := []worker.Worker{
		worker.NewScheduleWorker(collector, cfg.Collector.Interval),
		worker.NewRetentionWorker(store, cfg.Collector.RunRetention),
	}
	if resolver != nil {
		workers = append(workers, worker.NewDNSRefreshWorker(resolver, dnsRefreshInterval))
	}
	runner := worker.NewRunner(workers...)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	workerDone := make(chan error, 1)
	go func() { workerDone <- runner.Run(workerCtx) }()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("idxfetch ready", "addr", cfg.Server.Addr)

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down", "cause", context.Cause(ctx))
	case serveErr = <-errCh:
	}

	// Shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	cancelWorkers()
	if err := <-workerDone; err != nil && serveErr == nil {
		serveErr = err
	}

	slog.Info("idxfetch stopped")
	return serveErr
}

// newFetchClient assembles the fetch client. When reg is non-nil the
// limiter queue and cache size are exported as gauges.
func newFetchClient(cfg *config.Config, resolver *dnscache.Resolver, metrics *telemetry.Metrics, reg prometheus.Registerer) (*fetch.Client, error) {
	hc, err := fetch.NewHTTPClient(resolver)
	if err != nil {
		return nil, err
	}
	mem, err := cache.NewMemory[fetch.Payload](cfg.Cache.MaxSize)
	if err != nil {
		return nil, err
	}
	limiter, err := ratelimit.New(ratelimit.Limits{
		MaxRequests: cfg.RateLimit.MaxRequests,
		Window:      cfg.RateLimit.Window,
	})
	if err != nil {
		return nil, err
	}
	if reg != nil {
		if err := telemetry.RegisterGauge(reg, "ratelimit_queue", "Callers waiting for rate limiter admission.", limiter.Pending); err != nil {
			return nil, err
		}
		if err := telemetry.RegisterGauge(reg, "cache_entries", "Cached responses, expired ones included.", mem.Len); err != nil {
			return nil, err
		}
	}
	return fetch.New(fetch.Options{
		BaseURL:        cfg.Client.BaseURL,
		Headers:        config.HeaderMap(cfg.Client.Headers),
		HTTPClient:     hc,
		Cache:          mem,
		Limiter:        limiter,
		Metrics:        metrics,
		AttemptTimeout: cfg.Client.AttemptTimeout,
		MaxBodyBytes:   cfg.Client.MaxBodyBytes,
		CacheDefaults:  &fetch.CacheOptions{Enabled: cfg.Cache.Enabled, TTL: cfg.Cache.DefaultTTL},
		RetryDefaults:  &fetch.RetryOptions{MaxRetries: cfg.Retry.MaxRetries, BaseDelay: cfg.Retry.BaseDelay},
	})
}

// runOnce runs one job, or all of them when job is empty, and reports
// failed runs as an error so the process exits non-zero.
func runOnce(ctx context.Context, collector *app.Collector, job string) error {
	if job != "" {
		r, err := collector.RunJob(ctx, job)
		if err != nil {
			return err
		}
		if r.Status == idx.RunStatusFailed {
			return fmt.Errorf("job %s failed: %s", r.Job, r.Error)
		}
		slog.Info("job finished", "job", r.Job, "bytes", r.Bytes, "output", r.Output, "duration", r.Duration())
		return nil
	}

	sum, err := collector.RunAll(ctx)
	if err != nil {
		return err
	}
	slog.Info("collection finished", "jobs", len(sum.Runs), "failed", sum.Failed)
	return sum.Err()
}
