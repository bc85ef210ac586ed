// Package fetch implements the resilient HTTP client used for every call to
// the exchange API. Each Fetch consults a TTL response cache, queues for
// rate-limit admission, and retries transient failures with exponential
// backoff.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goretry "github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	idx "github.com/riskteria/idx-bei/internal"
	"github.com/riskteria/idx-bei/internal/cache"
	"github.com/riskteria/idx-bei/internal/ratelimit"
	"github.com/riskteria/idx-bei/internal/retry"
	"github.com/riskteria/idx-bei/internal/telemetry"
)

const (
	defaultCacheTTL     = 5 * time.Minute
	defaultCacheSize    = 1024
	defaultMaxBodyBytes = 64 << 20
)

var tracer = telemetry.Tracer("github.com/riskteria/idx-bei/internal/fetch")

// CacheOptions controls response caching for one call.
type CacheOptions struct {
	Enabled bool
	TTL     time.Duration
}

// RetryOptions controls retries for one call.
type RetryOptions = retry.Policy

// RequestOptions are the per-call parameters of Fetch. The zero value is a
// GET with the client's default cache and retry settings.
type RequestOptions struct {
	Method string
	Header http.Header
	Body   []byte
	Cache  *CacheOptions
	Retry  *RetryOptions
}

// Options configures a Client. Zero fields take defaults.
type Options struct {
	// BaseURL is prepended to relative request paths.
	BaseURL string
	// Headers are merged over DefaultHeaders for every request.
	Headers    http.Header
	HTTPClient *http.Client
	Cache      cache.Cache[Payload]
	Limiter    *ratelimit.Limiter
	Metrics    *telemetry.Metrics

	// AttemptTimeout bounds a single HTTP attempt. Zero means unbounded.
	AttemptTimeout time.Duration
	MaxBodyBytes   int64

	// CacheDefaults and RetryDefaults apply to calls that carry no options
	// of their own. Nil selects caching for 5m and 3 retries from 1s.
	// A non-nil value is kept as given, except that a missing TTL or
	// BaseDelay falls back to the default.
	CacheDefaults *CacheOptions
	RetryDefaults *RetryOptions

	// Rand returns jitter in [0, 1). Nil uses math/rand/v2.
	Rand func() float64
}

// Client is safe for concurrent use. Construct one per process and share it.
type Client struct {
	baseURL        string
	headers        http.Header
	http           *http.Client
	cache          cache.Cache[Payload]
	limiter        *ratelimit.Limiter
	metrics        *telemetry.Metrics
	attemptTimeout time.Duration
	maxBodyBytes   int64
	cacheDefaults  CacheOptions
	retryDefaults  RetryOptions
	rnd            func() float64
}

// New creates a Client from opts.
func New(opts Options) (*Client, error) {
	c := &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		headers:        mergeHeaders(DefaultHeaders(), opts.Headers),
		http:           opts.HTTPClient,
		cache:          opts.Cache,
		limiter:        opts.Limiter,
		metrics:        opts.Metrics,
		attemptTimeout: opts.AttemptTimeout,
		maxBodyBytes:   opts.MaxBodyBytes,
		cacheDefaults:  CacheOptions{Enabled: true, TTL: defaultCacheTTL},
		retryDefaults:  retry.DefaultPolicy(),
		rnd:            opts.Rand,
	}

	if c.http == nil {
		hc, err := NewHTTPClient(nil)
		if err != nil {
			return nil, err
		}
		c.http = hc
	}
	if c.cache == nil {
		mem, err := cache.NewMemory[Payload](defaultCacheSize)
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		c.cache = mem
	}
	if c.limiter == nil {
		l, err := ratelimit.New(ratelimit.DefaultLimits())
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		c.limiter = l
	}
	if c.maxBodyBytes <= 0 {
		c.maxBodyBytes = defaultMaxBodyBytes
	}
	if opts.CacheDefaults != nil {
		c.cacheDefaults = c.cacheOptions(opts.CacheDefaults)
	}
	if opts.RetryDefaults != nil {
		c.retryDefaults = c.retryPolicy(opts.RetryDefaults)
	}
	return c, nil
}

// Fetch returns the JSON payload at rawURL. A relative rawURL is resolved
// against the base URL.
//
// A cache hit returns without touching the network or the rate limiter.
// On a miss the call queues for admission once, then attempts the request,
// retrying failures that ShouldRetry accepts. A successful payload is
// cached before it is returned. When retries run out the last attempt's
// error is returned unchanged.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts RequestOptions) (Payload, error) {
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}
	target, err := c.resolve(rawURL)
	if err != nil {
		return Payload{}, err
	}
	cacheOpts := c.cacheOptions(opts.Cache)
	policy := c.retryPolicy(opts.Retry)

	ctx, span := tracer.Start(ctx, "fetch.Fetch", trace.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.full", target),
	))
	defer span.End()

	header := mergeHeaders(c.headers, opts.Header)
	if id := idx.RequestIDFromContext(ctx); id != "" && header.Get("X-Request-Id") == "" {
		header.Set("X-Request-Id", id)
	}
	base, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return Payload{}, fmt.Errorf("fetch: %w: %w", idx.ErrBadRequest, err)
	}
	base.Header = header

	key := cacheKey(method, target, opts.Header, opts.Body)
	if cacheOpts.Enabled {
		if p, ok := c.cache.Get(ctx, key); ok {
			c.countCache(true)
			c.countFetch("hit")
			span.SetAttributes(attribute.Bool("cache.hit", true))
			slog.LogAttrs(ctx, slog.LevelDebug, "fetch cache hit",
				slog.String("url", target),
			)
			return p, nil
		}
		c.countCache(false)
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	if err := c.admit(ctx); err != nil {
		fail(span, err)
		c.countFetch("error")
		return Payload{}, err
	}

	attempt := 0
	var p Payload
	err = goretry.Do(ctx, retry.NewBackoff(policy, c.rnd), func(ctx context.Context) error {
		attempt++
		if attempt > 1 && c.metrics != nil {
			c.metrics.Retries.Inc()
		}
		var aerr error
		p, aerr = c.attempt(ctx, base, opts.Body)
		if aerr == nil {
			return nil
		}
		if ShouldRetry(aerr) && attempt <= policy.MaxRetries {
			slog.LogAttrs(ctx, slog.LevelWarn, "fetch attempt failed, retrying",
				slog.String("url", target),
				slog.Int("attempt", attempt),
				slog.Int("max_retries", policy.MaxRetries),
				slog.String("error", aerr.Error()),
			)
			return goretry.RetryableError(aerr)
		}
		return aerr
	})
	span.SetAttributes(attribute.Int("fetch.attempts", attempt))
	if err != nil {
		fail(span, err)
		c.countFetch("error")
		return Payload{}, err
	}

	if cacheOpts.Enabled {
		c.cache.Set(ctx, key, p, cacheOpts.TTL)
	}
	c.countFetch("ok")
	return p, nil
}

// attempt performs one HTTP exchange. ctx is the call's context; the
// per-attempt timeout is derived from it.
func (c *Client) attempt(ctx context.Context, base *http.Request, body []byte) (Payload, error) {
	actx := ctx
	if c.attemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()
	}
	actx, span := tracer.Start(actx, "fetch.attempt")
	defer span.End()

	req := base.Clone(actx)
	if body != nil {
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		req.ContentLength = int64(len(body))
	}
	target := base.URL.String()

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observeUpstream("transport", start, true)
		fail(span, err)
		if cerr := ctx.Err(); cerr != nil {
			return Payload{}, cerr
		}
		return Payload{}, err
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observeUpstream(status, start, true)
		err := parseStatusError(target, resp)
		fail(span, err)
		return Payload{}, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	c.observeUpstream(status, start, err != nil)
	if err != nil {
		fail(span, err)
		if cerr := ctx.Err(); cerr != nil {
			return Payload{}, cerr
		}
		return Payload{}, fmt.Errorf("fetch: read body: %w", err)
	}
	if int64(len(data)) > c.maxBodyBytes {
		return Payload{}, &DecodeError{URL: target, StatusCode: resp.StatusCode, Snippet: snippet(data), Err: ErrBodyTooLarge}
	}
	p, err := NewPayload(data)
	if err != nil {
		derr := &DecodeError{URL: target, StatusCode: resp.StatusCode, Snippet: snippet(data), Err: err}
		fail(span, derr)
		return Payload{}, derr
	}
	return p, nil
}

// admit blocks until the rate limiter admits this call.
func (c *Client) admit(ctx context.Context) error {
	start := time.Now()
	err := c.limiter.Wait(ctx)
	if c.metrics != nil {
		c.metrics.RateLimitWait.Observe(time.Since(start).Seconds())
	}
	return err
}

// ClearCache drops every cached response.
func (c *Client) ClearCache(ctx context.Context) {
	c.cache.Purge(ctx)
	slog.LogAttrs(ctx, slog.LevelInfo, "fetch cache cleared")
}

// SetRateLimit replaces the live rate limits. Queued callers see the new
// limits on the limiter's next window evaluation.
func (c *Client) SetRateLimit(limits ratelimit.Limits) error {
	if err := c.limiter.SetLimits(limits); err != nil {
		return err
	}
	slog.LogAttrs(context.Background(), slog.LevelInfo, "rate limit updated",
		slog.Int("max_requests", limits.MaxRequests),
		slog.Duration("window", limits.Window),
	)
	return nil
}

// RateLimit returns the live rate limits.
func (c *Client) RateLimit() ratelimit.Limits {
	return c.limiter.Limits()
}

// PendingAdmissions returns the number of calls queued for admission.
func (c *Client) PendingAdmissions() int {
	return c.limiter.Pending()
}

// ShouldRetry reports whether err is a transient failure. See retry.ShouldRetry.
func ShouldRetry(err error) bool {
	return retry.ShouldRetry(err)
}

func (c *Client) resolve(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("fetch: %w: %w", idx.ErrBadRequest, err)
	}
	if !u.IsAbs() {
		if c.baseURL == "" {
			return "", fmt.Errorf("fetch: %w: relative url %q with no base url", idx.ErrBadRequest, rawURL)
		}
		rawURL = c.baseURL + "/" + strings.TrimLeft(rawURL, "/")
		if u, err = url.Parse(rawURL); err != nil {
			return "", fmt.Errorf("fetch: %w: %w", idx.ErrBadRequest, err)
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("fetch: %w: unsupported scheme %q", idx.ErrBadRequest, u.Scheme)
	}
	return u.String(), nil
}

func (c *Client) cacheOptions(o *CacheOptions) CacheOptions {
	if o == nil {
		return c.cacheDefaults
	}
	out := *o
	if out.TTL <= 0 {
		out.TTL = c.cacheDefaults.TTL
	}
	return out
}

func (c *Client) retryPolicy(o *RetryOptions) RetryOptions {
	if o == nil {
		return c.retryDefaults
	}
	out := *o
	if out.MaxRetries < 0 {
		out.MaxRetries = 0
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = c.retryDefaults.BaseDelay
	}
	return out
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (c *Client) countFetch(outcome string) {
	if c.metrics != nil {
		c.metrics.FetchTotal.WithLabelValues(outcome).Inc()
	}
}

func (c *Client) countCache(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHits.Inc()
	} else {
		c.metrics.CacheMisses.Inc()
	}
}

func (c *Client) observeUpstream(status string, start time.Time, failed bool) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if failed {
		c.metrics.UpstreamErrors.WithLabelValues(status).Inc()
	}
}
