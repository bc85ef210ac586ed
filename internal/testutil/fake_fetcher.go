// Package testutil provides configurable test fakes for collector interfaces.
package testutil

import (
	"context"
	"net/http"
	"slices"
	"sync"

	"github.com/riskteria/idx-bei/internal/fetch"
)

// FakeFetcher answers Fetch from a URL -> body map. Unknown URLs get a
// 404 *fetch.StatusError.
type FakeFetcher struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []string
	opts      []fetch.RequestOptions
}

// NewFakeFetcher returns a FakeFetcher serving responses.
func NewFakeFetcher(responses map[string]string) *FakeFetcher {
	if responses == nil {
		responses = make(map[string]string)
	}
	return &FakeFetcher{responses: responses, errs: make(map[string]error)}
}

// Fail makes every fetch of url return err.
func (f *FakeFetcher) Fail(url string, err error) *FakeFetcher {
	f.mu.Lock()
	f.errs[url] = err
	f.mu.Unlock()
	return f
}

// Fetch records the call and returns the canned response for url.
func (f *FakeFetcher) Fetch(_ context.Context, url string, opts fetch.RequestOptions) (fetch.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	f.opts = append(f.opts, opts)
	if err, ok := f.errs[url]; ok {
		return fetch.Payload{}, err
	}
	body, ok := f.responses[url]
	if !ok {
		return fetch.Payload{}, &fetch.StatusError{URL: url, StatusCode: http.StatusNotFound}
	}
	return fetch.NewPayload([]byte(body))
}

// Calls returns the fetched URLs in call order.
func (f *FakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Options returns the request options of every call in call order.
func (f *FakeFetcher) Options() []fetch.RequestOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.opts)
}
