// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	idx "github.com/riskteria/idx-bei/internal"
)

// Config is the top-level collector configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Client    ClientConfig    `yaml:"client"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry"`
	Collector CollectorConfig `yaml:"collector"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Jobs      []JobEntry      `yaml:"jobs"`
}

// ServerConfig holds admin HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // file path or ":memory:"
}

// AuthConfig holds admin authentication settings.
type AuthConfig struct {
	AdminKey string `yaml:"admin_key"` // bearer token for /admin; empty disables auth
}

// ClientConfig configures the upstream HTTP client.
type ClientConfig struct {
	BaseURL        string            `yaml:"base_url"`
	AttemptTimeout time.Duration     `yaml:"attempt_timeout"`
	Headers        map[string]string `yaml:"headers"`
	DNSCache       bool              `yaml:"dns_cache"`
	MaxBodyBytes   int64             `yaml:"max_body_bytes"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxSize    int           `yaml:"max_size"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// RateLimitConfig holds the client's admission limits.
type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// RetryConfig holds default retry settings.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
}

// CollectorConfig controls job execution.
type CollectorConfig struct {
	OutputDir    string        `yaml:"output_dir"`
	Concurrency  int           `yaml:"concurrency"`
	Interval     time.Duration `yaml:"interval"`      // scheduler period in -serve mode
	RunRetention time.Duration `yaml:"run_retention"` // run history kept in -serve mode
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// LoggingConfig controls the default slog logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// JobEntry is a collector job definition in the config file.
type JobEntry struct {
	Name     string            `yaml:"name"`
	URL      string            `yaml:"url"`
	Output   string            `yaml:"output"`
	CacheTTL time.Duration     `yaml:"cache_ttl"`
	Headers  map[string]string `yaml:"headers"`
	Merge    bool              `yaml:"merge"`
	Each     *EachEntry        `yaml:"each"`
	Paginate *PaginateEntry    `yaml:"paginate"`
}

// EachEntry makes a job fan out over keys read from another job's output.
type EachEntry struct {
	Source string `yaml:"source"` // output file, relative to collector.output_dir
	Path   string `yaml:"path"`   // gjson path selecting the keys
}

// PaginateEntry makes a job walk numbered pages until one comes back empty.
type PaginateEntry struct {
	Param    string `yaml:"param"`     // query parameter carrying the page number
	DataPath string `yaml:"data_path"` // gjson path to the page's records; default "data"
	Start    *int   `yaml:"start"`     // first page number; default 1
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Defaults returns the configuration used for any field the file omits.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			DSN: "idxfetch.db",
		},
		Client: ClientConfig{
			BaseURL:        "https://www.idx.co.id/primary",
			AttemptTimeout: 30 * time.Second,
			DNSCache:       true,
			MaxBodyBytes:   64 << 20,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxSize:    1024,
			DefaultTTL: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 5,
			Window:      time.Second,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  time.Second,
		},
		Collector: CollectorConfig{
			OutputDir:    "data",
			Concurrency:  4,
			Interval:     24 * time.Hour,
			RunRetention: 30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.max_requests must be positive, got %d", c.RateLimit.MaxRequests))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.window must be positive, got %s", c.RateLimit.Window))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry.max_retries must not be negative, got %d", c.Retry.MaxRetries))
	}
	if c.Retry.BaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("retry.base_delay must be positive, got %s", c.Retry.BaseDelay))
	}
	if c.Cache.DefaultTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.default_ttl must be positive, got %s", c.Cache.DefaultTTL))
	}
	if c.Cache.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("cache.max_size must be positive, got %d", c.Cache.MaxSize))
	}
	if c.Collector.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("collector.concurrency must be positive, got %d", c.Collector.Concurrency))
	}
	if c.Collector.Interval <= 0 {
		errs = append(errs, fmt.Errorf("collector.interval must be positive, got %s", c.Collector.Interval))
	}
	if c.Collector.RunRetention <= 0 {
		errs = append(errs, fmt.Errorf("collector.run_retention must be positive, got %s", c.Collector.RunRetention))
	}

	seen := make(map[string]bool, len(c.Jobs))
	for i, j := range c.Jobs {
		switch {
		case j.Name == "":
			errs = append(errs, fmt.Errorf("jobs[%d]: name is required", i))
		case seen[j.Name]:
			errs = append(errs, fmt.Errorf("jobs[%d]: duplicate name %q", i, j.Name))
		}
		seen[j.Name] = true
		if j.URL == "" {
			errs = append(errs, fmt.Errorf("jobs[%d] %q: url is required", i, j.Name))
		}
		if j.Each != nil {
			if j.Each.Source == "" || j.Each.Path == "" {
				errs = append(errs, fmt.Errorf("jobs[%d] %q: each needs source and path", i, j.Name))
			}
			if !strings.Contains(j.URL, idx.KeyPlaceholder) {
				errs = append(errs, fmt.Errorf("jobs[%d] %q: each job url must contain %s", i, j.Name, idx.KeyPlaceholder))
			}
		}
		if j.Paginate != nil {
			if j.Paginate.Param == "" {
				errs = append(errs, fmt.Errorf("jobs[%d] %q: paginate needs param", i, j.Name))
			}
			if j.Each != nil {
				errs = append(errs, fmt.Errorf("jobs[%d] %q: each and paginate are mutually exclusive", i, j.Name))
			}
			if j.Merge {
				errs = append(errs, fmt.Errorf("jobs[%d] %q: merge is not supported with paginate", i, j.Name))
			}
		}
	}
	return errors.Join(errs...)
}
