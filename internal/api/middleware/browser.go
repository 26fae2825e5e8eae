package middleware

import (
	"net/http"

	"github.com/bodhi-industries/eventhub/internal/auth"
	"github.com/bodhi-industries/eventhub/internal/session"
	"github.com/rs/zerolog"
)

// BrowserSessions binds each request to the auth provider of its browser.
// The provider is looked up by the browser cookie; a browser without one (or
// whose provider has been swept) gets a new provider, which silently restores
// any end-user session held in the session cookie.
func BrowserSessions(registry *auth.Registry, bridge *session.Bridge, cookieName string, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
				if p, ok := registry.Get(c.Value); ok {
					next.ServeHTTP(w, r.WithContext(auth.WithProvider(r.Context(), p)))
					return
				}
			}

			token := ""
			if bridge.Present(r) {
				var err error
				token, err = bridge.Read(r)
				if err != nil {
					zerolog.Ctx(r.Context()).Debug().Err(err).Msg("ignoring unreadable session cookie")
					token = ""
				}
			}

			id, p := registry.Open(r.Context(), token)
			http.SetCookie(w, &http.Cookie{
				Name:     cookieName,
				Value:    id,
				Path:     "/",
				Secure:   secure,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
			next.ServeHTTP(w, r.WithContext(auth.WithProvider(r.Context(), p)))
		})
	}
}
