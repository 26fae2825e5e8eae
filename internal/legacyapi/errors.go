package legacyapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrIncompleteEvent is returned when /event-detail answers without a usable
// event (empty array or first element without an id).
var ErrIncompleteEvent = errors.New("legacyapi: event data is incomplete")

// Error is returned for every failed call. Status 0 means the request never
// produced an HTTP response (DNS, connection, timeout, undecodable body).
type Error struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("legacyapi %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("legacyapi %s: status %d: %s", e.Op, e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Transport reports whether the failure happened before a response arrived.
func (e *Error) Transport() bool { return e.Status == 0 }

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// errorMessage extracts a human readable message from an error body.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 && !strings.HasPrefix(text, "<") {
		return text
	}
	return http.StatusText(status)
}
