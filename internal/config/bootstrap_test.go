package config

import (
	"context"
	"errors"
	"testing"
	"time"

	idx "github.com/riskteria/idx-bei/internal"
	"github.com/riskteria/idx-bei/internal/storage/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	path := t.TempDir() + "/test.db"
	s, err := sqlite.New(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBootstrap(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	cfg := &Config{
		Jobs: []JobEntry{
			{
				Name:     "broker-search",
				URL:      "/ExchangeMember/GetBrokerSearch?option=0&license=&start=0&length=9999",
				Output:   "brokerSearch.json",
				CacheTTL: time.Hour,
				Headers:  map[string]string{"referer": "https://www.idx.co.id/id/members-and-participants/exchange-member-directory/"},
			},
			{
				Name: "index-summary",
				URL:  "/TradingSummary/GetIndexSummary?length=9999&start=0",
			},
			{
				Name:   "company-details",
				URL:    "/ListedCompany/GetCompanyProfilesDetail?KodeEmiten={key}&language=id-id",
				Output: "companyDetails.json",
				Each:   &EachEntry{Source: "companyProfiles.json", Path: "data.#.KodeEmiten"},
			},
			{
				Name:     "financial-ratio",
				URL:      "/DigitalStatistic/GetApiDataPaginated?urlName=LINK_FINANCIAL_DATA_RATIO&pageSize=100",
				Paginate: &PaginateEntry{Param: "pageNumber"},
			},
		},
	}

	// First call seeds everything.
	if err := Bootstrap(ctx, cfg, store); err != nil {
		t.Fatal("bootstrap:", err)
	}

	job, err := store.GetJob(ctx, "broker-search")
	if err != nil {
		t.Fatal("get job:", err)
	}
	if job.CacheTTL != time.Hour {
		t.Errorf("cache ttl = %s, want 1h", job.CacheTTL)
	}
	if job.Headers.Get("Referer") == "" {
		t.Errorf("headers = %v, want canonical Referer", job.Headers)
	}

	summary, err := store.GetJob(ctx, "index-summary")
	if err != nil {
		t.Fatal("get job:", err)
	}
	if summary.Output != "index-summary.json" {
		t.Errorf("default output = %q, want index-summary.json", summary.Output)
	}

	details, err := store.GetJob(ctx, "company-details")
	if err != nil {
		t.Fatal("get job:", err)
	}
	if details.Each == nil || details.Each.Path != "data.#.KodeEmiten" {
		t.Errorf("each = %+v", details.Each)
	}

	ratio, err := store.GetJob(ctx, "financial-ratio")
	if err != nil {
		t.Fatal("get job:", err)
	}
	if want := (idx.Paginate{Param: "pageNumber", DataPath: "data", Start: 1}); ratio.Paginate == nil || *ratio.Paginate != want {
		t.Errorf("paginate = %+v, want %+v", ratio.Paginate, want)
	}

	// Second call is idempotent and applies edits.
	cfg.Jobs[1].Output = "indexSummary.json"
	if err := Bootstrap(ctx, cfg, store); err != nil {
		t.Fatal("idempotent bootstrap:", err)
	}

	jobs, err := store.ListJobs(ctx)
	if err != nil {
		t.Fatal("list jobs:", err)
	}
	if len(jobs) != 4 {
		t.Errorf("job count after second bootstrap = %d, want 4", len(jobs))
	}
	summary, _ = store.GetJob(ctx, "index-summary")
	if summary.Output != "indexSummary.json" {
		t.Errorf("output after edit = %q, want indexSummary.json", summary.Output)
	}
}

func TestBootstrapRemovesDroppedJobs(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	cfg := &Config{Jobs: []JobEntry{
		{Name: "news", URL: "/home/content"},
		{Name: "structured-warrants", URL: "/secondary/get/StructuredWarrant/List"},
	}}
	if err := Bootstrap(ctx, cfg, store); err != nil {
		t.Fatal(err)
	}
	run := &idx.JobRun{
		ID:         "r1",
		Job:        "structured-warrants",
		StartedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
		Status:     idx.RunStatusOK,
	}
	if err := store.InsertRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	cfg.Jobs = cfg.Jobs[:1]
	if err := Bootstrap(ctx, cfg, store); err != nil {
		t.Fatal(err)
	}

	jobs, err := store.ListJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].Name != "news" {
		t.Fatalf("jobs after removal = %v, want only news", jobNames(jobs))
	}
	if _, err := store.GetJob(ctx, "structured-warrants"); !errors.Is(err, idx.ErrNotFound) {
		t.Errorf("GetJob(removed) err = %v, want ErrNotFound", err)
	}
	runs, err := store.ListRuns(ctx, idx.RunFilter{Job: "structured-warrants", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("run history of removed job = %d runs, want 1", len(runs))
	}
}

func jobNames(jobs []*idx.Job) []string {
	names := make([]string, len(jobs))
	for i, j := range jobs {
		names[i] = j.Name
	}
	return names
}

func TestHeaderMap(t *testing.T) {
	t.Parallel()
	if HeaderMap(nil) != nil {
		t.Error("HeaderMap(nil) should be nil")
	}
	h := HeaderMap(map[string]string{"x-custom": "1"})
	if h.Get("X-Custom") != "1" {
		t.Errorf("HeaderMap = %v", h)
	}
}
