package middleware

import (
	"net/http"
	"strings"

	"github.com/bodhi-industries/eventhub/internal/metrics"
	"github.com/bodhi-industries/eventhub/internal/session"
	"github.com/rs/zerolog"
)

// GateRules names the sections the route gate cares about.
type GateRules struct {
	AuthPrefix      string
	ProtectedPrefix string
	LoginPath       string
}

// Decision is the outcome of the route gate for one request.
type Decision struct {
	Allow    bool
	Redirect string
}

// Decide applies the gate rules in order: the auth section always passes,
// the protected section without a session cookie redirects to the login
// path, and everything else passes.
func Decide(rules GateRules, path string, hasCookie bool) Decision {
	if underPrefix(path, rules.AuthPrefix) {
		return Decision{Allow: true}
	}
	if underPrefix(path, rules.ProtectedPrefix) && !hasCookie {
		return Decision{Redirect: rules.LoginPath}
	}
	return Decision{Allow: true}
}

// underPrefix matches whole path segments, so "/dashboard" covers
// "/dashboard" and "/dashboard/x" but not "/dashboards".
func underPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// RouteGate redirects navigations into the protected section that carry no
// session cookie. Only cookie presence is checked unless verifier is set, in
// which case the cookie must also hold a valid, unexpired access token.
// Requests outside the protected section pass through untouched.
func RouteGate(rules GateRules, bridge *session.Bridge, verifier *session.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !underPrefix(r.URL.Path, rules.ProtectedPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			hasCookie := bridge.Present(r)
			if hasCookie && verifier != nil {
				hasCookie = verifiedCookie(r, bridge, verifier)
			}

			decision := Decide(rules, r.URL.Path, hasCookie)
			if !decision.Allow {
				metrics.GateDecisionsTotal.WithLabelValues("redirect").Inc()
				http.Redirect(w, r, decision.Redirect, http.StatusFound)
				return
			}

			metrics.GateDecisionsTotal.WithLabelValues("allow").Inc()
			next.ServeHTTP(w, r)
		})
	}
}

func verifiedCookie(r *http.Request, bridge *session.Bridge, verifier *session.Verifier) bool {
	token, err := bridge.Read(r)
	if err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("gate: unreadable session cookie")
		return false
	}
	if _, err := verifier.Verify(token); err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("gate: session token rejected")
		return false
	}
	return true
}
