package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"slices"
	"sort"
	"strings"
)

// identityHeaders vary per process or per call without changing the
// response, so they are left out of the cache key.
var identityHeaders = map[string]struct{}{
	"User-Agent":   {},
	"Referer":      {},
	"X-Request-Id": {},
}

// cacheKey produces a deterministic SHA-256 hash identifying a request.
func cacheKey(method, url string, header http.Header, body []byte) string {
	m := map[string]any{
		"method": method,
		"url":    url,
	}
	if len(body) > 0 {
		m["body"] = string(body)
	}
	if h := normalizeHeader(header); len(h) > 0 {
		m["header"] = h
	}

	data := stableJSON(m)
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

type stableHeader struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

func normalizeHeader(h http.Header) []stableHeader {
	out := make([]stableHeader, 0, len(h))
	for name, vals := range h {
		name = http.CanonicalHeaderKey(name)
		if _, skip := identityHeaders[name]; skip {
			continue
		}
		out = append(out, stableHeader{Name: name, Values: slices.Clone(vals)})
	}
	slices.SortFunc(out, func(a, b stableHeader) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func stableJSON(m map[string]any) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}, len(keys))
	for i, k := range keys {
		ordered[i].Key = k
		ordered[i].Value = m[k]
	}

	data, _ := json.Marshal(ordered)
	return data
}
