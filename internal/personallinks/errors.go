package personallinks

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a malformed account, survey or participant id.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstreamUnavailable marks a failure of the survey platform or the
	// link store. Callers may retry.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrAllocationExhausted is returned when a request lost every race for
	// the configured number of mint rounds or ran out of time. Callers may retry.
	ErrAllocationExhausted = errors.New("allocation exhausted")
)

// ValidationError describes which input was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// IsRetryable reports whether err is a transient failure the caller can retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrAllocationExhausted)
}
