// Package handlers serves the EventHub pages and the small JSON surface used
// by client scripts and probes.
package handlers

import (
	"net/http"

	"github.com/bodhi-industries/eventhub/internal/api/render"
	"github.com/bodhi-industries/eventhub/internal/auth"
	"github.com/gorilla/csrf"
	"github.com/rs/zerolog"
)

// Site carries what every page needs: the renderer and the values shared by
// the layout.
type Site struct {
	Renderer       *render.Renderer
	CaptchaSiteKey string
	Version        string
	Env            string
}

// page assembles the layout data for r. Pending flashes are consumed, so
// each toast is shown once.
func (s *Site) page(r *http.Request, title string, data any) render.Page {
	p := render.Page{
		Title:          title,
		Path:           r.URL.Path,
		CaptchaSiteKey: s.CaptchaSiteKey,
		Version:        s.Version,
		CSRFField:      csrf.TemplateField(r),
		Data:           data,
	}
	if provider := auth.FromContext(r.Context()); provider != nil {
		p.User = provider.User()
		p.Flashes = provider.TakeFlashes()
	}
	return p
}

// render writes a page, falling back to a plain 500 when the template fails.
func (s *Site) render(w http.ResponseWriter, r *http.Request, status int, name string, page render.Page) {
	w.Header().Set("Cache-Control", "no-store")
	if err := s.Renderer.Render(w, status, name, page); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("template", name).Msg("template error")
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}

type errorView struct {
	Heading string
	Message string
}

// NotFound renders the not-found page for unmatched paths.
func (s *Site) NotFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "error", s.page(r, "Not found", errorView{
		Heading: "Page not found",
		Message: "The page you are looking for does not exist.",
	}))
}

// Home serves GET /. Every other path that reaches the root pattern is not
// found.
func (s *Site) Home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.NotFound(w, r)
		return
	}
	s.render(w, r, http.StatusOK, "home", s.page(r, "", nil))
}

// Dashboard serves GET /dashboard behind the gate and the guard.
func (s *Site) Dashboard(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "dashboard", s.page(r, "Dashboard", nil))
}

// Loading is the placeholder the guard shows while a session is restored.
func (s *Site) Loading(w http.ResponseWriter, r *http.Request) {
	// Flashes stay queued for the page the refresh eventually renders.
	page := render.Page{Title: "Loading", Path: r.URL.Path, Version: s.Version}
	s.render(w, r, http.StatusOK, "loading", page)
}
