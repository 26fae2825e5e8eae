package middleware

import (
	"net/http"
	"time"

	"github.com/bodhi-industries/eventhub/internal/auth"
	"github.com/bodhi-industries/eventhub/internal/metrics"
)

// RouteGuard re-checks the browser's auth state before rendering a protected
// page. The edge gate only sees the cookie; the guard sees the provider, so
// it also catches sessions that expired or were signed out elsewhere.
//
// While the provider is still restoring its session the guard waits up to
// wait for it. If it is still loading after that, placeholder is rendered
// with a Refresh header so the browser asks again.
func RouteGuard(loginPath string, wait time.Duration, placeholder http.Handler) func(http.Handler) http.Handler {
	if placeholder == nil {
		placeholder = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("Loading..."))
		})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.FromContext(r.Context())
			if p == nil {
				guardRedirect(w, r, loginPath)
				return
			}

			if p.Loading() && !awaitReady(r, p, wait) {
				metrics.GateDecisionsTotal.WithLabelValues("loading").Inc()
				w.Header().Set("Refresh", "1")
				w.Header().Set("Cache-Control", "no-store")
				placeholder.ServeHTTP(w, r)
				return
			}

			if r.URL.Path != loginPath && !signedIn(r, p) {
				guardRedirect(w, r, loginPath)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// signedIn reports whether the provider holds a live session or a user. An
// end-user profile without a live session does not count: it is about to be
// cleared by the sign-out that the failed refresh published.
func signedIn(r *http.Request, p *auth.Provider) bool {
	if p.LiveSession(r.Context()) != nil {
		return true
	}
	user := p.User()
	return user != nil && user.Role != auth.RoleUser
}

func awaitReady(r *http.Request, p *auth.Provider, wait time.Duration) bool {
	if wait <= 0 {
		return false
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-p.Ready():
		return true
	case <-timer.C:
		return false
	case <-r.Context().Done():
		return false
	}
}

func guardRedirect(w http.ResponseWriter, r *http.Request, loginPath string) {
	metrics.GateDecisionsTotal.WithLabelValues("guard_redirect").Inc()
	http.Redirect(w, r, loginPath, http.StatusFound)
}
