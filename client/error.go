package client

import (
	"fmt"
	"net/http"
)

// Error is an HTTP-level failure reported by the view server, with the
// error type and reason parsed from the response body when it carried
// valid JSON.
type Error struct {
	StatusCode int
	ErrorType  string
	Reason     string
}

func (e *Error) Error() string {
	if e.ErrorType == "" && e.Reason == "" {
		return fmt.Sprintf("view server error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("view server error (status %d): %s - %s", e.StatusCode, e.ErrorType, e.Reason)
}

// IsNotFound reports a missing view, design document or bucket.
func (e *Error) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports failed or missing credentials.
func (e *Error) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}
