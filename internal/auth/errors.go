package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bodhi-industries/eventhub/internal/identity"
	"github.com/bodhi-industries/eventhub/internal/legacyapi"
)

// ValidationError is a bad input detected before any remote call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Category classifies a rejection by an authority.
type Category string

const (
	CategoryEmailNotConfirmed  Category = "email_not_confirmed"
	CategoryInvalidCredentials Category = "invalid_credentials"
	CategoryRateLimited        Category = "rate_limited"
	CategoryUnknown            Category = "unknown"
)

// RejectedError is an authority's refusal of a well-formed request.
// Rejections are never retried.
type RejectedError struct {
	Category Category
	Message  string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("auth rejected (%s): %s", e.Category, e.Message)
}

// UserMessage is the text shown next to the form.
func (e *RejectedError) UserMessage() string {
	switch e.Category {
	case CategoryEmailNotConfirmed:
		return "Please confirm your email address before signing in"
	case CategoryInvalidCredentials:
		return "Invalid email or password"
	case CategoryRateLimited:
		return "Too many attempts. Please try again later"
	default:
		if e.Message == "" {
			return "Authentication failed"
		}
		return e.Message
	}
}

// NetworkError is a failure to reach or understand an authority.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// categorize maps identity provider messages to categories. Matching is
// exact; anything else is CategoryUnknown.
func categorize(message string) Category {
	switch message {
	case "Email not confirmed":
		return CategoryEmailNotConfirmed
	case "Invalid login credentials":
		return CategoryInvalidCredentials
	case "Rate limit exceeded":
		return CategoryRateLimited
	default:
		return CategoryUnknown
	}
}

func classifyIdentity(op string, err error) error {
	var idErr *identity.Error
	if errors.As(err, &idErr) && !idErr.Transport() {
		return &RejectedError{Category: categorize(idErr.Message), Message: idErr.Message}
	}
	return &NetworkError{Op: op, Err: err}
}

func classifyLegacy(op string, err error) error {
	var apiErr *legacyapi.Error
	if !errors.As(err, &apiErr) || apiErr.Transport() || apiErr.Status >= 500 {
		return &NetworkError{Op: op, Err: err}
	}
	switch apiErr.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &RejectedError{Category: CategoryInvalidCredentials, Message: apiErr.Message}
	case http.StatusTooManyRequests:
		return &RejectedError{Category: CategoryRateLimited, Message: apiErr.Message}
	default:
		return &RejectedError{Category: CategoryUnknown, Message: apiErr.Message}
	}
}
