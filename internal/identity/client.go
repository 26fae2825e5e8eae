// Package identity is a client for the hosted end-user identity provider
// (a GoTrue-compatible REST API, as served by Supabase under /auth/v1).
//
// Client is stateless and safe for concurrent use. Auth wraps a Client for a
// single browser session: it owns the current Session and publishes changes
// to subscribers.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bodhi-industries/eventhub/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout for HTTP requests
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20
	tracerName       = "github.com/bodhi-industries/eventhub/internal/identity"
)

// Client calls the identity provider's REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	anonKey    string
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

// NewClient creates a client for the project at projectURL
// (e.g. "https://xyz.supabase.co"). anonKey is the public project key.
func NewClient(projectURL, anonKey string, opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		anonKey: anonKey,
	}
	if projectURL != "" {
		client.baseURL = strings.TrimRight(projectURL, "/") + "/auth/v1"
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Configured reports whether a provider URL was supplied.
func (c *Client) Configured() bool { return c.baseURL != "" }

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password, captchaToken string) (*Session, error) {
	var s Session
	in := passwordGrant{Email: email, Password: password, Security: captcha(captchaToken)}
	if err := c.do(ctx, "sign_in", http.MethodPost, "/token?grant_type=password", "", in, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SignUp registers a new user. When the project requires email confirmation
// the provider returns only the user and session is nil.
func (c *Client) SignUp(ctx context.Context, params SignUpParams) (*Session, *User, error) {
	in := signUpRequest{
		Email:    params.Email,
		Password: params.Password,
		Security: captcha(params.CaptchaToken),
	}
	if params.Name != "" {
		in.Data = map[string]any{"name": params.Name}
	}

	var raw json.RawMessage
	if err := c.do(ctx, "sign_up", http.MethodPost, "/signup", "", in, &raw); err != nil {
		return nil, nil, err
	}
	if len(raw) == 0 {
		return nil, nil, &Error{Message: "empty sign-up response"}
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, nil, &Error{Message: "decode sign-up response", Err: err}
	}
	if s.AccessToken != "" {
		return &s, &s.User, nil
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, nil, &Error{Message: "decode sign-up response", Err: err}
	}
	return nil, &u, nil
}

// RefreshSession trades a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	var s Session
	in := refreshGrant{RefreshToken: refreshToken}
	if err := c.do(ctx, "refresh", http.MethodPost, "/token?grant_type=refresh_token", "", in, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SignOut revokes the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, "sign_out", http.MethodPost, "/logout", accessToken, nil, nil)
}

// GetUser returns the user that owns accessToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var u User
	if err := c.do(ctx, "get_user", http.MethodGet, "/user", accessToken, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ResetPasswordForEmail asks the provider to email password reset
// instructions. redirectTo may be empty.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo, captchaToken string) error {
	path := "/recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return c.do(ctx, "recover", http.MethodPost, path, "", recoverRequest{Email: email, Security: captcha(captchaToken)}, nil)
}

// Health calls the provider's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, "/health", "", nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path, bearer string, in, out any) (err error) {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "identity."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("identity.operation", op)),
	)
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
			if idErr, ok := err.(*Error); ok && idErr.Status >= 400 && idErr.Status < 500 {
				outcome = "rejected"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.ObserveUpstream("identity", op, outcome, start)
		span.End()
	}()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &Error{Message: "encode request", Err: err}
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Message: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.anonKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer == "" {
		bearer = c.anonKey
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Message: err.Error(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Message: "read response", Err: err}
	}
	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Message: "decode response", Err: err}
	}
	return nil
}
