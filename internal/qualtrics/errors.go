package qualtrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPError is a non-2xx response from the API.
type HTTPError struct {
	Operation  string
	StatusCode int
	Code       string
	Message    string
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("qualtrics %s: status %d: %s (%s)", e.Operation, e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("qualtrics %s: status %d", e.Operation, e.StatusCode)
}

// Retryable reports whether repeating the request may succeed.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// countsAgainstBreaker treats server-side and transport failures as signs of
// an unhealthy platform. Client errors and caller cancellation do not count.
func countsAgainstBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.Retryable()
	}
	return true
}
