package fetch

import "net/http"

// DefaultHeaders returns the browser-like headers every request carries
// unless the caller overrides them. The exchange API rejects requests
// that do not look like they come from its own web frontend.
func DefaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      {"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"},
		"Accept":          {"application/json, text/plain, */*"},
		"Accept-Language": {"en-US,en;q=0.9,id;q=0.8"},
		"Referer":         {"https://www.idx.co.id/"},
		"Origin":          {"https://www.idx.co.id"},
		"Sec-Fetch-Dest":  {"empty"},
		"Sec-Fetch-Mode":  {"cors"},
		"Sec-Fetch-Site":  {"same-origin"},
	}
}

// mergeHeaders returns base overlaid with override. Values from override
// replace base values key by key.
func mergeHeaders(base, override http.Header) http.Header {
	out := base.Clone()
	if out == nil {
		out = http.Header{}
	}
	for k, vals := range override {
		out[http.CanonicalHeaderKey(k)] = append([]string(nil), vals...)
	}
	return out
}
