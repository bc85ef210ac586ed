package fetch

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 4096

// ErrBodyTooLarge is wrapped by a DecodeError when a 2xx body exceeds the
// configured size limit.
var ErrBodyTooLarge = errors.New("fetch: response body too large")

// StatusError is a non-2xx response from the upstream.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

// HTTPStatus returns the response status for retry classification.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// parseStatusError reads up to 4KB from the response body and returns a StatusError.
func parseStatusError(url string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
}

// DecodeError is a 2xx response whose body is not a JSON document.
// It is never retried.
type DecodeError struct {
	URL        string
	StatusCode int
	Snippet    string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("fetch: %s: decode HTTP %d body: %v (body: %q)", e.URL, e.StatusCode, e.Err, e.Snippet)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// HTTPStatus returns the 2xx status the undecodable body arrived with.
func (e *DecodeError) HTTPStatus() int { return e.StatusCode }

func snippet(b []byte) string {
	if len(b) > 256 {
		b = b[:256]
	}
	return string(b)
}
