package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bodhi-industries/eventhub/internal/api/problem"
	"github.com/bodhi-industries/eventhub/internal/auth"
)

type sessionResponse struct {
	Kind      auth.Kind  `json:"kind"`
	User      *auth.User `json:"user,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

var errNoSession = errors.New("no active session")

// SessionAPI serves GET /api/session: the current identity for client
// scripts. It never exposes tokens.
type SessionAPI struct {
	Env string
	// Wait bounds how long a request waits for a restoring session.
	Wait time.Duration
}

func (h *SessionAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	provider := auth.FromContext(r.Context())
	if provider == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Session unavailable", errors.New("no auth provider in request context"), h.Env)
		return
	}

	if provider.Loading() {
		timer := time.NewTimer(h.Wait)
		defer timer.Stop()
		select {
		case <-provider.Ready():
		case <-timer.C:
		case <-r.Context().Done():
			return
		}
	}
	if provider.Loading() {
		w.Header().Set("Retry-After", "1")
		problem.Write(w, r, http.StatusServiceUnavailable, problem.TypeUpstream, "Session is still loading", nil, h.Env,
			problem.WithDetail("The session is being restored; retry shortly."))
		return
	}

	kind, ok := provider.Kind()
	if !ok {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Not signed in", errNoSession, h.Env,
			problem.WithDetail("No active session"))
		return
	}

	resp := sessionResponse{Kind: kind, User: provider.User()}
	if s := provider.Session(); s != nil {
		if exp, ok := s.Expiry(); ok {
			resp.ExpiresAt = &exp
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
