// Package session bridges an end-user identity session to the
// supabase-auth-token cookie that the route gate inspects.
package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bodhi-industries/eventhub/internal/config"
	"github.com/bodhi-industries/eventhub/internal/identity"
)

// ErrMalformed is returned when a cookie value is not {"access_token": "..."}.
var ErrMalformed = errors.New("session: malformed cookie value")

type cookiePayload struct {
	AccessToken string `json:"access_token"`
}

// Encode returns the cookie value for accessToken: the JSON object
// {"access_token": "<token>"}, URL-escaped so it survives cookie syntax.
// Tokens that are not valid UTF-8 cannot round-trip through JSON and are
// rejected.
func Encode(accessToken string) (string, error) {
	if accessToken == "" || !utf8.ValidString(accessToken) {
		return "", ErrMalformed
	}
	raw, err := json.Marshal(cookiePayload{AccessToken: accessToken})
	if err != nil {
		return "", err
	}
	return url.QueryEscape(string(raw)), nil
}

// Decode returns the access token held in a cookie value. Both the escaped
// form written by Encode and the raw JSON form are accepted.
func Decode(value string) (string, error) {
	raw := value
	if !strings.HasPrefix(raw, "{") {
		unescaped, err := url.QueryUnescape(raw)
		if err != nil {
			return "", ErrMalformed
		}
		raw = unescaped
	}
	var payload cookiePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil || payload.AccessToken == "" {
		return "", ErrMalformed
	}
	return payload.AccessToken, nil
}

// Bridge writes, reads and deletes the session cookie.
type Bridge struct {
	name     string
	policy   string
	fixedTTL time.Duration
	secure   bool
	now      func() time.Time
}

func NewBridge(cfg config.SessionConfig) *Bridge {
	return &Bridge{
		name:     cfg.CookieName,
		policy:   cfg.ExpiryPolicy,
		fixedTTL: cfg.FixedTTL,
		secure:   cfg.SecureCookies,
		now:      time.Now,
	}
}

// Name returns the cookie name.
func (b *Bridge) Name() string { return b.name }

// Expiry computes the cookie expiry for a token. With the "token" policy it
// is expiresAt, else the token's exp claim, else the fixed TTL; with the
// "fixed" policy it is always now plus the fixed TTL.
func (b *Bridge) Expiry(accessToken string, expiresAt time.Time) time.Time {
	if b.policy == config.ExpiryFromToken {
		if !expiresAt.IsZero() {
			return expiresAt
		}
		if exp, ok := identity.TokenExpiry(accessToken); ok {
			return exp
		}
	}
	return b.now().Add(b.fixedTTL)
}

// Write sets the cookie for accessToken.
func (b *Bridge) Write(w http.ResponseWriter, accessToken string, expiresAt time.Time) error {
	value, err := Encode(accessToken)
	if err != nil {
		return err
	}
	expires := b.Expiry(accessToken, expiresAt)
	maxAge := int(expires.Sub(b.now()).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     b.name,
		Value:    value,
		Path:     "/",
		Expires:  expires.UTC(),
		MaxAge:   maxAge,
		Secure:   b.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear deletes the cookie.
func (b *Bridge) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     b.name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   b.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Present reports whether the request carries a non-empty session cookie.
func (b *Bridge) Present(r *http.Request) bool {
	c, err := r.Cookie(b.name)
	return err == nil && c.Value != ""
}

// Read returns the access token from the request's cookie.
func (b *Bridge) Read(r *http.Request) (string, error) {
	c, err := r.Cookie(b.name)
	if err != nil {
		return "", err
	}
	return Decode(c.Value)
}
