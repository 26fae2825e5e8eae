package handlers

import (
	"net/http"
	"time"

	"github.com/bodhi-industries/eventhub/internal/session"
)

// browserPage adapts one response to auth.Page. Cookie changes are written
// to the response headers immediately; the navigation target is applied by
// the handler once the provider call returns.
type browserPage struct {
	w      http.ResponseWriter
	bridge *session.Bridge
	target string
}

func newBrowserPage(w http.ResponseWriter, bridge *session.Bridge) *browserPage {
	return &browserPage{w: w, bridge: bridge}
}

func (p *browserPage) Navigate(path string) { p.target = path }

func (p *browserPage) PersistToken(accessToken string, expiresAt time.Time) error {
	return p.bridge.Write(p.w, accessToken, expiresAt)
}

func (p *browserPage) ForgetToken() { p.bridge.Clear(p.w) }

// redirect sends the browser to the recorded target with 303 See Other so
// the follow-up request is a GET. It reports false when nothing navigated.
func (p *browserPage) redirect(r *http.Request) bool {
	if p.target == "" {
		return false
	}
	http.Redirect(p.w, r, p.target, http.StatusSeeOther)
	return true
}
