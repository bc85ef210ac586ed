// Package app runs collector jobs: it fetches each job's endpoint through
// the shared fetch client and writes the payload to the output directory.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	idx "github.com/riskteria/idx-bei/internal"
	"github.com/riskteria/idx-bei/internal/fetch"
	"github.com/riskteria/idx-bei/internal/storage"
	"github.com/riskteria/idx-bei/internal/telemetry"
)

var tracer = telemetry.Tracer("github.com/riskteria/idx-bei/internal/app")

// maxPages bounds a paginated walk whose endpoint never returns an
// empty page.
const maxPages = 1000

// flushEvery is how many fan-out results accumulate before the output
// file is rewritten, so an interrupted run resumes where it stopped.
const flushEvery = 25

// Fetcher retrieves a JSON payload. *fetch.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts fetch.RequestOptions) (fetch.Payload, error)
}

// CollectorStore is the persistence the collector needs.
type CollectorStore interface {
	storage.JobStore
	storage.RunStore
}

// CollectorOptions configures a Collector.
type CollectorOptions struct {
	Fetcher     Fetcher
	Store       CollectorStore
	Metrics     *telemetry.Metrics
	OutputDir   string
	Concurrency int

	// DisableCache sends every job fetch with caching off, overriding
	// per-job cache TTLs.
	DisableCache bool
}

// Collector executes jobs with bounded concurrency. It is safe for
// concurrent use.
type Collector struct {
	fetcher      Fetcher
	store        CollectorStore
	metrics      *telemetry.Metrics
	outputDir    string
	concurrency  int
	disableCache bool
	now          func() time.Time

	// outputs serializes writers of the same output file.
	outputs sync.Map // path -> *sync.Mutex
}

// NewCollector creates a Collector.
func NewCollector(opts CollectorOptions) *Collector {
	return &Collector{
		fetcher:      opts.Fetcher,
		store:        opts.Store,
		metrics:      opts.Metrics,
		outputDir:    opts.OutputDir,
		concurrency:  max(1, opts.Concurrency),
		disableCache: opts.DisableCache,
		now:          time.Now,
	}
}

// Summary describes one RunAll pass.
type Summary struct {
	Runs   []*idx.JobRun `json:"runs"`
	Failed int           `json:"failed"`
}

// Err returns a non-nil error naming the failed jobs, if any.
func (s Summary) Err() error {
	if s.Failed == 0 {
		return nil
	}
	var names []string
	for _, r := range s.Runs {
		if r.Status == idx.RunStatusFailed {
			names = append(names, r.Job)
		}
	}
	return fmt.Errorf("%d of %d jobs failed: %s", s.Failed, len(s.Runs), strings.Join(names, ", "))
}

// RunAll runs every stored job. A failing job is recorded and does not
// stop the others. Fan-out jobs run after plain jobs so their source
// files are fresh.
func (c *Collector) RunAll(ctx context.Context) (Summary, error) {
	jobs, err := c.store.ListJobs(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("collector: list jobs: %w", err)
	}

	var plain, fanout []*idx.Job
	for _, j := range jobs {
		if j.Each != nil {
			fanout = append(fanout, j)
		} else {
			plain = append(plain, j)
		}
	}

	var sum Summary
	for _, batch := range [][]*idx.Job{plain, fanout} {
		runs := make([]*idx.JobRun, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.concurrency)
		for i, j := range batch {
			g.Go(func() error {
				runs[i] = c.run(gctx, j)
				return nil
			})
		}
		g.Wait()
		sum.Runs = append(sum.Runs, runs...)
	}
	for _, r := range sum.Runs {
		if r.Status == idx.RunStatusFailed {
			sum.Failed++
		}
	}
	return sum, ctx.Err()
}

// RunJob runs the named job once. The returned run is recorded even when
// it failed; err is non-nil only if the job does not exist.
func (c *Collector) RunJob(ctx context.Context, name string) (*idx.JobRun, error) {
	job, err := c.store.GetJob(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("collector: job %q: %w", name, err)
	}
	return c.run(ctx, job), nil
}

// run executes one job and records its outcome.
func (c *Collector) run(ctx context.Context, job *idx.Job) *idx.JobRun {
	id := uuid.Must(uuid.NewV7()).String()
	ctx = idx.ContextWithRequestID(ctx, id)
	ctx, span := tracer.Start(ctx, "collector.run")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", job.Name))

	run := &idx.JobRun{
		ID:        id,
		Job:       job.Name,
		StartedAt: c.now().UTC(),
		RequestID: id,
	}

	path, err := c.outputPath(job.Output)
	if err == nil {
		run.Output = path
		switch {
		case job.Each != nil:
			run.Bytes, err = c.fanOut(ctx, job, path)
		case job.Paginate != nil:
			run.Bytes, err = c.paged(ctx, job, path)
		default:
			run.Bytes, err = c.single(ctx, job, path)
		}
	}

	run.FinishedAt = c.now().UTC()
	run.Status = idx.RunStatusOK
	level := slog.LevelInfo
	if err != nil {
		run.Status = idx.RunStatusFailed
		run.Error = err.Error()
		level = slog.LevelError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	slog.LogAttrs(ctx, level, "job run",
		slog.String("job", job.Name),
		slog.String("run_id", run.ID),
		slog.String("status", string(run.Status)),
		slog.Int64("bytes", run.Bytes),
		slog.Duration("duration", run.Duration()),
		slog.String("error", run.Error),
	)
	if c.metrics != nil {
		c.metrics.JobRuns.WithLabelValues(job.Name, string(run.Status)).Inc()
		c.metrics.JobDuration.WithLabelValues(job.Name).Observe(run.Duration().Seconds())
	}

	// Record even if the caller's context is done.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.store.InsertRun(rctx, run); err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "record job run failed",
			slog.String("job", job.Name),
			slog.String("error", err.Error()),
		)
	}
	return run
}

// single fetches a job's URL and writes the payload, merging into the
// existing file when the job asks for it.
func (c *Collector) single(ctx context.Context, job *idx.Job, path string) (int64, error) {
	p, err := c.fetcher.Fetch(ctx, job.URL, c.requestOptions(job))
	if err != nil {
		return 0, err
	}

	unlock := c.lockOutput(path)
	defer unlock()

	doc := p.Raw()
	if job.Merge {
		if doc, err = mergeInto(path, doc); err != nil {
			return 0, fmt.Errorf("merge output: %w", err)
		}
	}
	return writeJSON(path, doc)
}

// pagedDoc is the document a paginated job writes.
type pagedDoc struct {
	TotalRecords int               `json:"totalRecords"`
	Data         []json.RawMessage `json:"data"`
}

// paged walks the job's numbered pages until one has no records and
// writes all records as a single document. A failed page fails the run
// and leaves the previous output in place, as does a walk that finds no
// records at all.
func (c *Collector) paged(ctx context.Context, job *idx.Job, path string) (int64, error) {
	pg := job.Paginate
	base, err := url.Parse(job.URL)
	if err != nil {
		return 0, fmt.Errorf("collector: %w: job url: %v", idx.ErrBadRequest, err)
	}
	opts := c.requestOptions(job)

	records := []json.RawMessage{}
	pages := 0
	for page := pg.Start; ; page++ {
		if pages == maxPages {
			return 0, fmt.Errorf("paginate: no empty page after %d pages", maxPages)
		}
		q := base.Query()
		q.Set(pg.Param, strconv.Itoa(page))
		u := *base
		u.RawQuery = q.Encode()

		p, err := c.fetcher.Fetch(ctx, u.String(), opts)
		if err != nil {
			return 0, fmt.Errorf("page %d: %w", page, err)
		}
		items := p.Get(pg.DataPath)
		if !items.IsArray() || len(items.Array()) == 0 {
			break
		}
		pages++
		for _, it := range items.Array() {
			records = append(records, json.RawMessage(it.Raw))
		}
		slog.LogAttrs(ctx, slog.LevelDebug, "page fetched",
			slog.String("job", job.Name),
			slog.Int("page", page),
			slog.Int("records", len(records)),
		)
	}

	if len(records) == 0 {
		slog.LogAttrs(ctx, slog.LevelWarn, "paginated job returned no records",
			slog.String("job", job.Name),
		)
		return 0, nil
	}
	doc, err := json.Marshal(pagedDoc{TotalRecords: len(records), Data: records})
	if err != nil {
		return 0, err
	}

	unlock := c.lockOutput(path)
	defer unlock()
	return writeJSON(path, doc)
}

// fanOut fetches the job URL once per key listed in the source file and
// stores each result under its key. Keys already in the output are
// skipped. Item failures are counted; the run fails if any item failed.
func (c *Collector) fanOut(ctx context.Context, job *idx.Job, path string) (int64, error) {
	srcPath, err := c.outputPath(job.Each.Source)
	if err != nil {
		return 0, err
	}
	src, err := os.ReadFile(srcPath)
	if err != nil {
		return 0, fmt.Errorf("read fan-out source: %w", err)
	}
	keys := extractKeys(src, job.Each.Path)

	unlock := c.lockOutput(path)
	defer unlock()

	done, err := readObject(path)
	if err != nil {
		return 0, err
	}
	var todo []string
	for _, k := range keys {
		if _, ok := done[k]; !ok {
			todo = append(todo, k)
		}
	}
	slog.LogAttrs(ctx, slog.LevelInfo, "fan-out job",
		slog.String("job", job.Name),
		slog.Int("keys", len(keys)),
		slog.Int("pending", len(todo)),
	)

	var (
		mu      sync.Mutex
		pending int
		written int64
		failed  []string
		werr    error
	)
	flush := func() {
		doc, err := json.Marshal(done)
		if err == nil {
			written, err = writeJSON(path, doc)
		}
		if err != nil {
			werr = err
		}
		pending = 0
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	opts := c.requestOptions(job)
	for _, key := range todo {
		g.Go(func() error {
			target := strings.ReplaceAll(job.URL, idx.KeyPlaceholder, url.QueryEscape(key))
			p, err := c.fetcher.Fetch(gctx, target, opts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, key)
				slog.LogAttrs(gctx, slog.LevelWarn, "fan-out item failed",
					slog.String("job", job.Name),
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				return nil
			}
			done[key] = json.RawMessage(p.Raw())
			pending++
			if pending >= flushEvery {
				flush()
			}
			return nil
		})
	}
	g.Wait()

	mu.Lock()
	defer mu.Unlock()
	if pending > 0 || written == 0 {
		flush()
	}
	if werr != nil {
		return written, fmt.Errorf("write output: %w", werr)
	}
	if len(failed) > 0 {
		return written, fmt.Errorf("%d of %d items failed (first: %s)", len(failed), len(todo), failed[0])
	}
	return written, ctx.Err()
}

// extractKeys returns the distinct non-empty string values at path, in
// document order.
func extractKeys(doc []byte, path string) []string {
	res := gjson.GetBytes(doc, path)
	var items []gjson.Result
	if res.IsArray() {
		items = res.Array()
	} else if res.Exists() {
		items = []gjson.Result{res}
	}

	seen := make(map[string]bool, len(items))
	keys := make([]string, 0, len(items))
	for _, it := range items {
		k := strings.TrimSpace(it.String())
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

// requestOptions builds the fetch options for job. A job without its own
// TTL uses the client's cache defaults.
func (c *Collector) requestOptions(job *idx.Job) fetch.RequestOptions {
	opts := fetch.RequestOptions{Header: job.Headers}
	switch {
	case c.disableCache:
		opts.Cache = &fetch.CacheOptions{Enabled: false}
	case job.CacheTTL > 0:
		opts.Cache = &fetch.CacheOptions{Enabled: true, TTL: job.CacheTTL}
	}
	return opts
}

// outputPath resolves name inside the output directory.
func (c *Collector) outputPath(name string) (string, error) {
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("collector: %w: output %q escapes the output directory", idx.ErrBadRequest, name)
	}
	return filepath.Join(c.outputDir, name), nil
}

func (c *Collector) lockOutput(path string) func() {
	v, _ := c.outputs.LoadOrStore(path, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
