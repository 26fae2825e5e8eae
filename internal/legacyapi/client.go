// Package legacyapi is the HTTP adapter for the legacy REST backend that
// owns organizer accounts, events, ticket tiers and organizer interest.
//
// The adapter has a fixed base URL, sends and receives JSON, never retries,
// and reports every failure as *Error.
package legacyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bodhi-industries/eventhub/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultBaseURL is the production legacy backend.
	DefaultBaseURL = "https://api.cftx.net/prod-cached"
	// DefaultTimeout for HTTP requests
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 4 << 20
	tracerName       = "github.com/bodhi-industries/eventhub/internal/legacyapi"
)

// WireFormat selects how response bodies are framed.
type WireFormat string

const (
	// WireJSON responses are the JSON payload itself.
	WireJSON WireFormat = "json"
	// WireEnveloped responses are {"statusCode": n, "body": "<json string>"}
	// and the body is decoded a second time.
	WireEnveloped WireFormat = "enveloped"
)

// Client talks to the legacy backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	wire       WireFormat
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithWireFormat selects the response framing. Unknown values keep WireJSON.
func WithWireFormat(format WireFormat) Option {
	return func(c *Client) {
		if format == WireEnveloped {
			c.wire = WireEnveloped
		}
	}
}

// NewClient creates a legacy backend client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		baseURL: baseURL,
		wire:    WireJSON,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Login authenticates an organizer. captchaToken is forwarded so the backend
// can verify the Turnstile challenge itself.
func (c *Client) Login(ctx context.Context, email, password, captchaToken string) (*AuthResponse, error) {
	var out AuthResponse
	in := credentials{Email: email, Password: password, CaptchaToken: captchaToken}
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", "", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an organizer account.
func (c *Client) Register(ctx context.Context, name, email, password, captchaToken string) (*AuthResponse, error) {
	var out AuthResponse
	in := credentials{Name: name, Email: email, Password: password, CaptchaToken: captchaToken}
	if err := c.do(ctx, "register", http.MethodPost, "/auth/register", "", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout ends the organizer session. token may be empty when the backend
// issued none.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, "logout", http.MethodPost, "/auth/logout", token, nil, nil)
}

// Me returns the organizer behind token.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var out meResponse
	if err := c.do(ctx, "me", http.MethodGet, "/auth/me", token, nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) ListEvents(ctx context.Context) ([]Event, error) {
	var out []Event
	if err := c.do(ctx, "list_events", http.MethodGet, "/events/", "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EventDetail fetches one event. The backend answers with an array; only the
// first element is used and it must carry an id.
func (c *Client) EventDetail(ctx context.Context, id string) (*Event, error) {
	var out []Event
	if err := c.do(ctx, "event_detail", http.MethodPost, "/event-detail", "", idRequest{ID: id}, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 || out[0].ID == "" {
		return nil, ErrIncompleteEvent
	}
	return &out[0], nil
}

func (c *Client) TicketTiers(ctx context.Context, eventID string) ([]TicketTier, error) {
	var out []TicketTier
	if err := c.do(ctx, "ticket_tiers", http.MethodPost, "/ticket-tiers", "", idRequest{ID: eventID}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitInterest forwards an organizer-interest form.
func (c *Client) SubmitInterest(ctx context.Context, in InterestRequest) error {
	return c.do(ctx, "organizer_interest", http.MethodPost, "/organizers/interest", "", in, nil)
}

// Ping checks that the backend answers HTTP at all. Any response below 500
// counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/events/", nil)
	if err != nil {
		return &Error{Op: "ping", Message: err.Error(), Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: "ping", Message: err.Error(), Err: err}
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &Error{Op: "ping", Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path, token string, in, out any) (err error) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "legacyapi."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPMethod(method),
			attribute.String("legacyapi.path", path),
			attribute.String("legacyapi.wire_format", string(c.wire)),
		),
	)
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
			if status := StatusOf(err); status >= 400 && status < 500 {
				outcome = "rejected"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.ObserveUpstream("legacy", op, outcome, start)
		span.End()
	}()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Message: "encode request", Err: err}
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Op: op, Message: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Message: err.Error(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	span.SetAttributes(semconv.HTTPStatusCode(resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Op: op, Message: "read response", Err: err}
	}

	status := resp.StatusCode
	payload := raw
	if c.wire == WireEnveloped && status < 400 {
		status, payload, err = unwrapEnvelope(raw)
		if err != nil {
			return &Error{Op: op, Message: "decode envelope", Err: err}
		}
	}

	if status >= 400 {
		return &Error{Op: op, Status: status, Message: errorMessage(status, payload)}
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &Error{Op: op, Message: "decode response", Err: err}
	}
	return nil
}

type envelope struct {
	StatusCode int     `json:"statusCode"`
	Body       *string `json:"body"`
}

// unwrapEnvelope returns the inner status and payload of an enveloped
// response. The inner body must be a JSON-encoded string holding the
// payload; a raw object or array is rejected so a misconfigured wire format
// fails loudly instead of half working.
func unwrapEnvelope(raw []byte) (int, []byte, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return 0, nil, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.StatusCode == 0 {
		return 0, nil, fmt.Errorf("missing statusCode")
	}
	if env.Body == nil {
		return 0, nil, fmt.Errorf("missing body")
	}
	return env.StatusCode, []byte(*env.Body), nil
}
