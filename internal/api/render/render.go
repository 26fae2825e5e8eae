// Package render executes the embedded page templates inside the site
// layout.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"time"

	"github.com/bodhi-industries/eventhub/internal/auth"
)

const (
	layoutFile = "layout.html"
	layoutName = "layout"
)

// Page is the data every template sees. Data carries the page-specific view.
type Page struct {
	Title          string
	Path           string
	User           *auth.User
	Flashes        []auth.Flash
	CSRFField      template.HTML
	CaptchaSiteKey string
	Version        string
	Year           int
	Data           any
}

// Renderer holds one parsed template set per page, each combined with the
// layout.
type Renderer struct {
	pages map[string]*template.Template
}

// New parses every *.html file in fsys other than the layout as a page.
func New(fsys fs.FS) (*Renderer, error) {
	files, err := fs.Glob(fsys, "*.html")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, file := range files {
		if file == layoutFile {
			continue
		}
		tmpl, err := template.New(file).Funcs(funcs).ParseFS(fsys, layoutFile, file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		r.pages[pageName(file)] = tmpl
	}
	if len(r.pages) == 0 {
		return nil, fmt.Errorf("no page templates found")
	}
	return r, nil
}

func pageName(file string) string {
	return file[:len(file)-len(path.Ext(file))]
}

// Has reports whether a page template exists.
func (r *Renderer) Has(name string) bool {
	_, ok := r.pages[name]
	return ok
}

// Render executes page name into w with status. The page is buffered so a
// template error never produces a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, page Page) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	if page.Year == 0 {
		page.Year = time.Now().Year()
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, layoutName, page); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
	return nil
}

var funcs = template.FuncMap{
	"formatDate": FormatDate,
}
