package fetch

import (
	"net/http"
	"testing"
)

func TestCacheKey_Deterministic(t *testing.T) {
	t.Parallel()

	h := http.Header{"X-B": {"2"}, "X-A": {"1"}, "Accept-Language": {"id"}}
	k1 := cacheKey("GET", "https://example.com/x", h, nil)
	for range 20 {
		if k := cacheKey("GET", "https://example.com/x", h.Clone(), nil); k != k1 {
			t.Fatalf("key changed across calls: %s != %s", k, k1)
		}
	}
	if len(k1) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(k1))
	}
}

func TestCacheKey_Variance(t *testing.T) {
	t.Parallel()

	base := cacheKey("GET", "https://example.com/x", nil, nil)
	differs := map[string]string{
		"method": cacheKey("POST", "https://example.com/x", nil, nil),
		"url":    cacheKey("GET", "https://example.com/y", nil, nil),
		"query":  cacheKey("GET", "https://example.com/x?page=2", nil, nil),
		"body":   cacheKey("GET", "https://example.com/x", nil, []byte("a")),
		"header": cacheKey("GET", "https://example.com/x", http.Header{"Accept": {"text/csv"}}, nil),
	}
	for name, k := range differs {
		if k == base {
			t.Errorf("%s change did not change the key", name)
		}
	}

	same := map[string]string{
		"user-agent": cacheKey("GET", "https://example.com/x", http.Header{"User-Agent": {"x"}}, nil),
		"referer":    cacheKey("GET", "https://example.com/x", http.Header{"Referer": {"y"}}, nil),
		"request-id": cacheKey("GET", "https://example.com/x", http.Header{"X-Request-Id": {"z"}}, nil),
		"lowercase":  cacheKey("GET", "https://example.com/x", http.Header{"user-agent": {"x"}}, nil),
		"empty":      cacheKey("GET", "https://example.com/x", http.Header{}, []byte{}),
	}
	for name, k := range same {
		if k != base {
			t.Errorf("%s should not change the key", name)
		}
	}
}

func TestMergeHeaders(t *testing.T) {
	t.Parallel()

	base := http.Header{"Accept": {"application/json"}, "Referer": {"a"}}
	got := mergeHeaders(base, http.Header{"referer": {"b"}, "X-New": {"1"}})

	if got.Get("Accept") != "application/json" || got.Get("Referer") != "b" || got.Get("X-New") != "1" {
		t.Errorf("merged = %v", got)
	}
	if base.Get("Referer") != "a" {
		t.Error("base header mutated")
	}
	if h := mergeHeaders(nil, nil); h == nil {
		t.Error("mergeHeaders(nil, nil) returned nil")
	}
}
