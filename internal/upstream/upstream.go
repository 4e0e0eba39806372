// Package upstream classifies failures of the external AI services the
// server proxies to.
package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotConfigured means the service's API key is missing.
	ErrNotConfigured = errors.New("upstream not configured")
	// ErrRateLimited corresponds to an upstream 429.
	ErrRateLimited = errors.New("upstream rate limit exceeded")
	// ErrQuotaExhausted corresponds to an upstream 402.
	ErrQuotaExhausted = errors.New("upstream credits exhausted")
)

// StatusError is a non-2xx response from an upstream service.
type StatusError struct {
	Service string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Service, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: status %d", e.Service, e.Status)
}

// Is lets errors.Is match the sentinel that corresponds to the status code.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrQuotaExhausted:
		return e.Status == http.StatusPaymentRequired
	}
	return false
}

// FromStatus returns a *StatusError for status, truncating body to a
// reasonable length for logging.
func FromStatus(service string, status int, body string) error {
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &StatusError{Service: service, Status: status, Body: body}
}

// Status extracts the upstream HTTP status from err, or 0.
func Status(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// Outcome is a short label for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrQuotaExhausted):
		return "quota_exhausted"
	case Status(err) != 0:
		return "status_error"
	}
	return "error"
}
