// Package problem writes RFC 9457 problem details for the JSON endpoints.
package problem

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

const contentType = "application/problem+json"

const typeBase = "https://eventhub.bodhi.industries/problems/"

// Problem type URIs.
const (
	TypeUnauthorized = typeBase + "unauthorized"
	TypeUpstream     = typeBase + "upstream-unavailable"
	TypeServerError  = typeBase + "server-error"
)

// fallbackBody is sent when a problem cannot be encoded.
const fallbackBody = `{"type":"about:blank","title":"Internal Server Error","status":500}`

type Details struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

type Option func(*Details)

func WithDetail(detail string) Option {
	return func(d *Details) { d.Detail = detail }
}

// Write logs err, when set, and renders the problem. Without an explicit
// detail, err's text is shown in development and test; other environments
// get the bare status text.
func Write(w http.ResponseWriter, r *http.Request, status int, typ, title string, err error, env string, opts ...Option) {
	d := Details{Type: typ, Title: title, Status: status}
	for _, opt := range opts {
		opt(&d)
	}
	if r != nil {
		d.Instance = r.URL.Path
	}
	if d.Detail == "" && err != nil {
		d.Detail = publicDetail(err, status, env)
	}
	if err != nil && r != nil {
		logProblem(r, d, err)
	}
	Render(w, d)
}

func publicDetail(err error, status int, env string) string {
	switch env {
	case "development", "test":
		return err.Error()
	default:
		return http.StatusText(status)
	}
}

func logProblem(r *http.Request, d Details, err error) {
	logger := zerolog.Ctx(r.Context())
	event := logger.Warn()
	if d.Status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).
		Int("status", d.Status).
		Str("type", d.Type).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg(d.Title)
}

// Render writes d as the response.
func Render(w http.ResponseWriter, d Details) {
	w.Header().Set("Content-Type", contentType)
	payload, err := json.Marshal(d)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(fallbackBody))
		return
	}
	w.WriteHeader(d.Status)
	_, _ = w.Write(payload)
}
