package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  addr: ":9090"
  read_timeout: 10s
database:
  dsn: ":memory:"
client:
  base_url: https://www.idx.co.id/primary
  attempt_timeout: 15s
  headers:
    accept-language: id-ID
rate_limit:
  max_requests: 2
  window: 3s
retry:
  max_retries: 5
  base_delay: 500ms
collector:
  output_dir: /tmp/idx
  concurrency: 2
  interval: 6h
jobs:
  - name: broker-search
    url: /ExchangeMember/GetBrokerSearch?option=0&license=&start=0&length=9999
    output: brokerSearch.json
    cache_ttl: 10m
    headers:
      Referer: https://www.idx.co.id/id/members-and-participants/exchange-member-directory/
  - name: news
    url: /NewsAnnouncement/GetAllAnnouncement?pageNumber=1&pageSize=10&lang=id
    merge: true
`
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want %q", cfg.Server.Addr, ":9090")
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("read timeout = %s, want 10s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 60*time.Second {
		t.Errorf("write timeout = %s, want default 60s", cfg.Server.WriteTimeout)
	}
	if cfg.Database.DSN != ":memory:" {
		t.Errorf("dsn = %q, want %q", cfg.Database.DSN, ":memory:")
	}
	if cfg.Client.AttemptTimeout != 15*time.Second {
		t.Errorf("attempt timeout = %s, want 15s", cfg.Client.AttemptTimeout)
	}
	if cfg.RateLimit.MaxRequests != 2 || cfg.RateLimit.Window != 3*time.Second {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.Retry.MaxRetries != 5 || cfg.Retry.BaseDelay != 500*time.Millisecond {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Collector.Interval != 6*time.Hour || cfg.Collector.Concurrency != 2 {
		t.Errorf("collector = %+v", cfg.Collector)
	}
	if len(cfg.Jobs) != 2 {
		t.Fatalf("jobs count = %d, want 2", len(cfg.Jobs))
	}
	if cfg.Jobs[0].CacheTTL != 10*time.Minute {
		t.Errorf("job cache ttl = %s, want 10m", cfg.Jobs[0].CacheTTL)
	}
	if !cfg.Jobs[1].Merge {
		t.Error("news job should merge")
	}
	if got := HeaderMap(cfg.Client.Headers).Get("Accept-Language"); got != "id-ID" {
		t.Errorf("client header = %q, want id-ID", got)
	}
}

func TestExpandEnv(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv
	t.Setenv("TEST_ADMIN_KEY", "secret-123")

	path := writeConfig(t, "auth:\n  admin_key: ${TEST_ADMIN_KEY}\ndatabase:\n  dsn: ${TEST_UNSET_VAR_IDX}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Auth.AdminKey != "secret-123" {
		t.Errorf("admin key = %q, want %q", cfg.Auth.AdminKey, "secret-123")
	}
	// Unset variables are left as-is.
	if cfg.Database.DSN != "${TEST_UNSET_VAR_IDX}" {
		t.Errorf("dsn = %q, want the literal placeholder", cfg.Database.DSN)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("default addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if cfg.Database.DSN != "idxfetch.db" {
		t.Errorf("default dsn = %q, want %q", cfg.Database.DSN, "idxfetch.db")
	}
	if cfg.Client.BaseURL != "https://www.idx.co.id/primary" {
		t.Errorf("default base url = %q", cfg.Client.BaseURL)
	}
	if cfg.RateLimit.MaxRequests != 5 || cfg.RateLimit.Window != time.Second {
		t.Errorf("default rate limit = %+v, want 5 per 1s", cfg.RateLimit)
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.BaseDelay != time.Second {
		t.Errorf("default retry = %+v, want 3 from 1s", cfg.Retry)
	}
	if !cfg.Cache.Enabled || cfg.Cache.DefaultTTL != 5*time.Minute {
		t.Errorf("default cache = %+v", cfg.Cache)
	}
	if cfg.Collector.Interval != 24*time.Hour {
		t.Errorf("default interval = %s, want 24h", cfg.Collector.Interval)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero max requests", func(c *Config) { c.RateLimit.MaxRequests = 0 }, "rate_limit.max_requests"},
		{"negative window", func(c *Config) { c.RateLimit.Window = -time.Second }, "rate_limit.window"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "retry.max_retries"},
		{"zero base delay", func(c *Config) { c.Retry.BaseDelay = 0 }, "retry.base_delay"},
		{"zero concurrency", func(c *Config) { c.Collector.Concurrency = 0 }, "collector.concurrency"},
		{"zero retention", func(c *Config) { c.Collector.RunRetention = 0 }, "collector.run_retention"},
		{"zero cache ttl", func(c *Config) { c.Cache.Enabled = false; c.Cache.DefaultTTL = 0 }, "cache.default_ttl"},
		{"empty job name", func(c *Config) { c.Jobs = []JobEntry{{URL: "/x"}} }, "name is required"},
		{"empty job url", func(c *Config) { c.Jobs = []JobEntry{{Name: "x"}} }, "url is required"},
		{"each without placeholder", func(c *Config) {
			c.Jobs = []JobEntry{{Name: "x", URL: "/detail", Each: &EachEntry{Source: "a.json", Path: "data.#.Code"}}}
		}, "must contain {key}"},
		{"each without path", func(c *Config) {
			c.Jobs = []JobEntry{{Name: "x", URL: "/detail?code={key}", Each: &EachEntry{Source: "a.json"}}}
		}, "each needs source and path"},
		{"valid each", func(c *Config) {
			c.Jobs = []JobEntry{{Name: "x", URL: "/detail?code={key}", Each: &EachEntry{Source: "a.json", Path: "data.#.Code"}}}
		}, ""},
		{"paginate without param", func(c *Config) {
			c.Jobs = []JobEntry{{Name: "x", URL: "/ratios", Paginate: &PaginateEntry{}}}
		}, "paginate needs param"},
		{"paginate with each", func(c *Config) {
			c.Jobs = []JobEntry{{
				Name:     "x",
				URL:      "/detail?code={key}",
				Each:     &EachEntry{Source: "a.json", Path: "data.#.Code"},
				Paginate: &PaginateEntry{Param: "pageNumber"},
			}}
		}, "mutually exclusive"},
		{"paginate with merge", func(c *Config) {
			c.Jobs = []JobEntry{{Name: "x", URL: "/ratios", Merge: true, Paginate: &PaginateEntry{Param: "pageNumber"}}}
		}, "merge is not supported"},
		{"valid paginate", func(c *Config) {
			c.Jobs = []JobEntry{{Name: "x", URL: "/ratios", Paginate: &PaginateEntry{Param: "pageNumber"}}}
		}, ""},
		{"duplicate job", func(c *Config) {
			c.Jobs = []JobEntry{{Name: "x", URL: "/a"}, {Name: "x", URL: "/b"}}
		}, "duplicate name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()
	_, err := Load(writeConfig(t, "rate_limit:\n  max_requests: 0\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("err = %v, want invalid config", err)
	}
}

func TestLoadSampleConfig(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join("..", "..", "configs", "idxfetch.yaml"))
	if err != nil {
		t.Fatalf("sample config: %v", err)
	}
	if len(cfg.Jobs) == 0 {
		t.Fatal("sample config should define jobs")
	}
	var fanout, paged int
	for _, j := range cfg.Jobs {
		if j.Each != nil {
			fanout++
		}
		if j.Paginate != nil {
			paged++
		}
	}
	if fanout == 0 {
		t.Error("sample config should include a fan-out job")
	}
	if paged == 0 {
		t.Error("sample config should include a paginated job")
	}
}
