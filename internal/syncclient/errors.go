package syncclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	// ErrTimeout means a remote call exceeded Client.Timeout.
	ErrTimeout = errors.New("remote call timed out")
)

// ConflictError is returned when the remote reports a conflicting state.
type ConflictError struct {
	StatusCode int
	ServerData json.RawMessage
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: HTTP %d", e.StatusCode)
}

// StatusError is a non-2xx, non-conflict response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, body)
}

// Unwrap maps auth failures onto the sentinels.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	}
	return nil
}

// IsConflict reports whether err carries a remote conflict and returns it.
func IsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
