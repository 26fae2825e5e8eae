package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrNotConfigured is returned when no identity provider URL is configured.
var ErrNotConfigured = errors.New("identity: provider not configured")

// Error is a failed identity provider call. Status 0 means no HTTP response
// was received.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("identity: %s", e.Message)
	}
	return fmt.Sprintf("identity: status %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Transport reports whether the failure happened before a response arrived.
func (e *Error) Transport() bool { return e.Status == 0 }

// decodeError builds an Error from a GoTrue error body. The message is taken
// from msg, error_description, message or error, in that order.
func decodeError(status int, body []byte) *Error {
	var payload struct {
		Msg              string `json:"msg"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorCode        string `json:"error_code"`
	}
	_ = json.Unmarshal(body, &payload)

	e := &Error{Status: status, Code: payload.ErrorCode}
	if e.Code == "" {
		e.Code = payload.Error
	}
	for _, candidate := range []string{payload.Msg, payload.ErrorDescription, payload.Message, payload.Error} {
		if candidate != "" {
			e.Message = candidate
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
