// Package retry classifies fetch failures and computes backoff delays.
package retry

import (
	"context"
	"errors"
	"net/http"
)

// httpStatusError is an interface for errors carrying an HTTP status code.
type httpStatusError interface {
	HTTPStatus() int
}

// ShouldRetry reports whether a failed attempt is worth repeating.
//
//   - no status code (transport failure, attempt timeout) -> true
//   - 408, 429, 500, 502, 503, 504 -> true
//   - any other status -> false
//   - context.Canceled -> false, the caller gave up
//   - nil -> false
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var he httpStatusError
	if errors.As(err, &he) {
		return RetryableStatus(he.HTTPStatus())
	}
	return true
}

// RetryableStatus reports whether a response status signals a transient
// server or overload condition.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
