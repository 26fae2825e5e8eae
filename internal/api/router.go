package api

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"

	"github.com/bodhi-industries/eventhub/internal/api/handlers"
	"github.com/bodhi-industries/eventhub/internal/api/middleware"
	"github.com/bodhi-industries/eventhub/internal/api/render"
	"github.com/bodhi-industries/eventhub/internal/auth"
	"github.com/bodhi-industries/eventhub/internal/config"
	"github.com/bodhi-industries/eventhub/internal/identity"
	"github.com/bodhi-industries/eventhub/internal/legacyapi"
	"github.com/bodhi-industries/eventhub/internal/metrics"
	"github.com/bodhi-industries/eventhub/internal/session"
	"github.com/bodhi-industries/eventhub/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Dependencies are the long-lived collaborators the router wires together.
type Dependencies struct {
	Config   config.Config
	Logger   zerolog.Logger
	Build    BuildInfo
	Legacy   *legacyapi.Client
	Identity *identity.Client
	Registry *auth.Registry
	// Notifier is optional; nil skips organizer-interest emails.
	Notifier handlers.InterestNotifier
}

// NewRouter builds the site handler. ctx bounds background work owned by the
// middleware, such as the rate limiter's cleanup loop.
func NewRouter(ctx context.Context, deps Dependencies) (http.Handler, error) {
	cfg := deps.Config
	logger := deps.Logger

	renderer, err := render.New(web.Templates())
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	csrfKey, err := csrfAuthKey(cfg, logger)
	if err != nil {
		return nil, err
	}

	bridge := session.NewBridge(cfg.Session)
	var verifier *session.Verifier
	if cfg.Gate.VerifyTokens {
		verifier = session.NewVerifier(cfg.Identity.JWTSecret)
	}

	site := &handlers.Site{
		Renderer:       renderer,
		CaptchaSiteKey: cfg.Captcha.SiteKey,
		Version:        deps.Build.WithDefaults().Version,
		Env:            cfg.Environment,
	}
	authPages := handlers.NewAuthPages(site, bridge, deps.Identity, cfg.Server.BaseURL+cfg.Gate.LoginPath)
	eventsPages := handlers.NewEventsPages(site, deps.Legacy, cfg.Pages, cfg.Server.BaseURL)
	interestPages := handlers.NewInterestPages(site, deps.Legacy, deps.Notifier)
	sessionAPI := &handlers.SessionAPI{Env: cfg.Environment, Wait: cfg.Session.GuardWait}
	health := handlers.NewHealthChecker(deps.Build.WithDefaults().Version, deps.Build.WithDefaults().GitCommit,
		handlers.Probe{Name: "legacy_api", Check: deps.Legacy.Ping},
		handlers.Probe{Name: "identity", Check: deps.Identity.Health, Optional: true},
	)

	limit := middleware.RateLimit(ctx, cfg.RateLimit)
	loginLimited := func(h http.Handler) http.Handler {
		return middleware.WithRateLimitTierHandler(middleware.TierLogin)(limit(h))
	}

	// Pages run with CSRF protection, a per-browser auth provider and the
	// route gate.
	csrfProtect := middleware.CSRFProtection(csrfKey, cfg.Session.SecureCookies)
	sessions := middleware.BrowserSessions(deps.Registry, bridge, cfg.Session.BrowserCookie, cfg.Session.SecureCookies)
	gate := middleware.RouteGate(middleware.GateRules{
		AuthPrefix:      cfg.Gate.AuthPrefix,
		ProtectedPrefix: cfg.Gate.ProtectedPrefix,
		LoginPath:       cfg.Gate.LoginPath,
	}, bridge, verifier)
	page := func(h http.HandlerFunc) http.Handler {
		return csrfProtect(sessions(gate(h)))
	}
	guard := middleware.RouteGuard(cfg.Gate.LoginPath, cfg.Session.GuardWait, http.HandlerFunc(site.Loading))

	mux := http.NewServeMux()

	mux.Handle("GET /static/", web.StaticHandler())
	mux.Handle("/robots.txt", web.RobotsTxtHandler())
	mux.Handle("GET /healthz", handlers.Healthz())
	mux.Handle("GET /readyz", health.Health())
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.Handle("GET /version", VersionHandler(deps.Build))
	mux.Handle("GET /api/openapi.json", OpenAPIHandler(web.OpenAPIDocument()))
	mux.Handle("GET /api/session", page(sessionAPI.ServeHTTP))

	mux.Handle("GET /{$}", page(site.Home))
	mux.Handle("GET /events", page(eventsPages.List))
	mux.Handle("GET /event-details/{id}", page(eventsPages.Details))
	mux.Handle("GET /organizers/interest", page(interestPages.Form))
	mux.Handle("POST /organizers/interest", page(interestPages.Submit))

	mux.Handle("GET /auth/login", page(authPages.LoginPage))
	mux.Handle("POST /auth/login", loginLimited(page(authPages.Login)))
	mux.Handle("GET /auth/register", page(authPages.RegisterPage))
	mux.Handle("POST /auth/register", loginLimited(page(authPages.Register)))
	mux.Handle("GET /auth/forgot-password", page(authPages.ForgotPasswordPage))
	mux.Handle("POST /auth/forgot-password", loginLimited(page(authPages.ForgotPassword)))
	mux.Handle("POST /auth/logout", page(authPages.Logout))

	mux.Handle("GET /dashboard", page(guard(http.HandlerFunc(site.Dashboard)).ServeHTTP))
	mux.Handle("/", page(site.NotFound))

	var handler http.Handler = mux
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.LimitBody(middleware.MaxFormBody)(handler)
	handler = limit(handler)
	handler = middleware.SecurityHeaders(cfg.IsProduction())(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.CorrelationID(logger)(handler)
	return handler, nil
}

// csrfAuthKey returns the configured CSRF key. Outside production a missing
// key is replaced by a random one, which invalidates open forms on restart.
func csrfAuthKey(cfg config.Config, logger zerolog.Logger) ([]byte, error) {
	if cfg.CSRF.AuthKey != "" {
		return []byte(cfg.CSRF.AuthKey), nil
	}
	if cfg.IsProduction() {
		return nil, fmt.Errorf("CSRF_AUTH_KEY is required in production")
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate csrf key: %w", err)
	}
	logger.Warn().Msg("CSRF_AUTH_KEY not set; using an ephemeral key")
	return key, nil
}
