// Package web embeds the page templates and static assets served by the
// EventHub frontend.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed robots.txt
var robotsTxt []byte

//go:embed openapi.yaml
var openAPIYAML []byte

//go:embed templates/*.html
var templateFiles embed.FS

//go:embed static
var staticFiles embed.FS

// Templates returns the page templates rooted at the templates directory.
func Templates() fs.FS {
	sub, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic(err) // embedded path is fixed
	}
	return sub
}

// OpenAPIDocument returns the YAML description of the JSON endpoints.
func OpenAPIDocument() []byte { return openAPIYAML }

// RobotsTxtHandler serves the robots.txt file.
func RobotsTxtHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(robotsTxt)
	})
}

// StaticHandler serves the embedded assets under /static/.
func StaticHandler() http.Handler {
	files := http.FileServerFS(staticFiles)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600, must-revalidate")
		files.ServeHTTP(w, r)
	})
}
