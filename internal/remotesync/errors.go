package remotesync

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrSyncInProgress is returned when a pass is requested while another
	// is running. The request is dropped, not queued.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrConflict is returned when the backend rejects a write as stale.
	ErrConflict = errors.New("remote conflict")

	// ErrUnauthorized is returned when the backend rejects the token.
	ErrUnauthorized = errors.New("remote rejected credentials")
)

// ConflictError describes a 409 from the backend.
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string {
	if e.Path == "" {
		return "remote conflict"
	}
	return fmt.Sprintf("remote conflict for %s", e.Path)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// HTTPError is an error response from the backend.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the request may succeed if repeated.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}
