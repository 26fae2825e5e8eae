package api

import (
	"net/http"
	"sync"

	"sigs.k8s.io/yaml"
)

// OpenAPIHandler serves the YAML document as JSON. The conversion runs once,
// on the first request.
func OpenAPIHandler(document []byte) http.HandlerFunc {
	var (
		once    sync.Once
		payload []byte
		convErr error
	)
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		once.Do(func() {
			payload, convErr = yaml.YAMLToJSON(document)
		})
		if convErr != nil {
			http.Error(w, "openapi unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}
}
