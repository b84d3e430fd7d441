// Package httpstatus classifies non-2xx responses from outbound calls.
package httpstatus

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is returned for non-2xx responses.
type Error struct {
	URL  string
	Code int
}

func (e *Error) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.URL)
}

// Retryable reports whether the status is worth another attempt.
func (e *Error) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

// Retryable reports whether err should be retried. Errors that carry no
// status, such as transport failures, are retried.
func Retryable(err error) bool {
	var status *Error
	if errors.As(err, &status) {
		return status.Retryable()
	}
	return true
}
