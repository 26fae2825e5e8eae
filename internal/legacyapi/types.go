package legacyapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is an identifier the legacy backend may send as a JSON string or number.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("legacyapi: id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// User is an organizer account as returned by the legacy backend.
type User struct {
	ID        ID     `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

// AuthResponse is the body of /auth/login and /auth/register.
type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

type meResponse struct {
	User User `json:"user"`
}

type Event struct {
	ID               ID     `json:"id"`
	EventName        string `json:"event_name"`
	EventDescription string `json:"event_description"`
	EventDate        string `json:"event_date"`
	VenueAddress     string `json:"venue_address"`
	BannerImageURL   string `json:"banner_image_url"`
}

type TicketTier struct {
	ID        ID          `json:"id"`
	TierName  string      `json:"tier_name"`
	TierPrice json.Number `json:"tier_price"`
}

// InterestRequest is an organizer-interest submission.
type InterestRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Organization string `json:"organization"`
	Description  string `json:"description"`
	Phone        string `json:"phone"`
}

type credentials struct {
	Name         string `json:"name,omitempty"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captchaToken,omitempty"`
}

type idRequest struct {
	ID string `json:"id"`
}
