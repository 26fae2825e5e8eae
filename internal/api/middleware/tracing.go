package middleware

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/bodhi-industries/eventhub/internal/api"

// Tracing opens a server span per request, continuing any W3C trace context
// the caller sent. It must wrap the ServeMux: after routing the span is
// renamed to the matched pattern so page views of different events share
// one span name. Only 5xx responses mark the span as failed.
func Tracing(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parent := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(parent, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(requestAttributes(r)...),
		)
		defer span.End()

		req := r.WithContext(ctx)
		rw := &responseWriter{ResponseWriter: w}
		next.ServeHTTP(rw, req)

		if req.Pattern != "" {
			span.SetName(req.Pattern)
			span.SetAttributes(semconv.HTTPRoute(patternPath(req.Pattern)))
		}

		status := rw.code()
		span.SetAttributes(semconv.HTTPStatusCode(status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}

func requestAttributes(r *http.Request) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.HTTPMethod(r.Method),
		semconv.HTTPScheme(requestScheme(r)),
		attribute.String("http.target", r.URL.RequestURI()),
		semconv.NetHostName(r.Host),
		attribute.String("user_agent.original", r.UserAgent()),
	}
	if id := GetRequestID(r.Context()); id != "" {
		attrs = append(attrs, attribute.String("request_id", id))
	}
	return attrs
}

// patternPath strips the method from a ServeMux pattern ("GET /x" -> "/x").
func patternPath(pattern string) string {
	_, path, found := strings.Cut(pattern, " ")
	if !found {
		return pattern
	}
	return path
}

func requestScheme(r *http.Request) string {
	switch {
	case r.TLS != nil:
		return "https"
	case r.Header.Get("X-Forwarded-Proto") == "https":
		return "https"
	default:
		return "http"
	}
}
