// Package drive provides single-file CRUD plus path resolution against the
// Google Drive v3 API, with bearer-token auth, bounded retry on authorization
// failure, and error classification.
package drive

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status classification.
// Use errors.Is(err, drive.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("drive: bad request")
	ErrUnauthorized = errors.New("drive: unauthorized")
	ErrForbidden    = errors.New("drive: forbidden")
	ErrNotFound     = errors.New("drive: not found")
	ErrThrottled    = errors.New("drive: rate limited")
	ErrServerError  = errors.New("drive: server error")

	// ErrInvalidPayload marks remote content that exists but cannot be
	// parsed as a prompt library.
	ErrInvalidPayload = errors.New("drive: prompts file contains invalid JSON")
)

// Error wraps a sentinel error with the HTTP status and the API error body
// for diagnostics.
type Error struct {
	StatusCode int
	Status     string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("drive: HTTP %d %s: %s", e.StatusCode, e.Status, e.Message)
	}

	return fmt.Sprintf("drive: HTTP %d %s", e.StatusCode, e.Status)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
