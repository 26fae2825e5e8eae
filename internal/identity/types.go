package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is the identity provider's user record. Only the fields the frontend
// reads are decoded.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Name returns user_metadata.name, or "" when absent.
func (u User) Name() string {
	if u.UserMetadata == nil {
		return ""
	}
	name, _ := u.UserMetadata["name"].(string)
	return name
}

// Session is an access/refresh token pair issued by the identity provider.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

// Expiry returns when the access token stops being valid: expires_at when
// present, otherwise the token's exp claim. ok is false when neither is known.
func (s *Session) Expiry() (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0), true
	}
	return TokenExpiry(s.AccessToken)
}

// Expired reports whether the session is past its expiry at now. Sessions with
// unknown expiry are treated as live.
func (s *Session) Expired(now time.Time) bool {
	exp, ok := s.Expiry()
	return ok && !now.Before(exp)
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
func TokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Event names the kind of session change delivered to subscribers.
type Event string

const (
	EventInitialSession Event = "INITIAL_SESSION"
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// AuthChange is one entry of the session change stream. Session is nil after
// sign-out.
type AuthChange struct {
	Event   Event
	Session *Session
}

// SignUpParams are the inputs of a new end-user registration.
type SignUpParams struct {
	Email        string
	Password     string
	Name         string
	CaptchaToken string
}

type securityMeta struct {
	CaptchaToken string `json:"captcha_token,omitempty"`
}

type passwordGrant struct {
	Email    string        `json:"email"`
	Password string        `json:"password"`
	Security *securityMeta `json:"gotrue_meta_security,omitempty"`
}

type refreshGrant struct {
	RefreshToken string `json:"refresh_token"`
}

type signUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
	Security *securityMeta  `json:"gotrue_meta_security,omitempty"`
}

type recoverRequest struct {
	Email    string        `json:"email"`
	Security *securityMeta `json:"gotrue_meta_security,omitempty"`
}

func captcha(token string) *securityMeta {
	if token == "" {
		return nil
	}
	return &securityMeta{CaptchaToken: token}
}
