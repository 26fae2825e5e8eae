package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/bodhi-industries/eventhub/internal/api"
	"github.com/bodhi-industries/eventhub/internal/auth"
	"github.com/bodhi-industries/eventhub/internal/config"
	"github.com/bodhi-industries/eventhub/internal/email"
	"github.com/bodhi-industries/eventhub/internal/identity"
	"github.com/bodhi-industries/eventhub/internal/legacyapi"
	"github.com/bodhi-industries/eventhub/internal/metrics"
	"github.com/bodhi-industries/eventhub/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Server flags (override config/env)
type serveFlags struct {
	host string
	port int
}

func newServeCommand(global *globalFlags) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the EventHub HTTP server",
		Long: `Start the EventHub HTTP server and begin accepting requests.

The server will:
- Load configuration from environment variables (over --config if provided)
- Connect to the legacy backend and the identity provider
- Serve the site, the session API and the probes
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  eventhub serve

  # Start on a specific host and port
  eventhub serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  eventhub serve --log-level debug

  # Start with a config file
  eventhub serve --config /etc/eventhub/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global, flags)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&flags.host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&flags.port, "port", 0, "server port (default: 8080)")
	return cmd
}

// loadConfig reads the optional YAML file, then the environment, then the
// command-line overrides.
func loadConfig(global *globalFlags, flags *serveFlags) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if global.configPath != "" {
		cfg, err = config.LoadFile(global.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}

	if flags.host != "" {
		cfg.Server.Host = flags.host
	}
	if flags.port != 0 {
		cfg.Server.Port = flags.port
	}
	if global.logLevel != "" {
		cfg.Logging.Level = global.logLevel
	}
	if global.logFormat != "" {
		cfg.Logging.Format = global.logFormat
	}
	return cfg, nil
}

// application is the wired server and the background work it owns.
type application struct {
	server   *http.Server
	registry *auth.Registry
}

func newApplication(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*application, error) {
	legacy := legacyapi.NewClient(cfg.Legacy.BaseURL,
		legacyapi.WithTimeout(cfg.Legacy.Timeout),
		legacyapi.WithWireFormat(legacyapi.WireFormat(cfg.Legacy.WireFormat)),
	)
	idp := identity.NewClient(cfg.Identity.URL, cfg.Identity.AnonKey, identity.WithTimeout(cfg.Identity.Timeout))
	if !idp.Configured() {
		logger.Warn().Msg("SUPABASE_URL not set; end-user sign-in is disabled")
	}

	captcha := auth.NewCaptchaGuard(cfg.Captcha.ReplayWindow)
	providerLogger := logger.With().Str("component", "auth").Logger()
	registry := auth.NewRegistry(func() *auth.Provider {
		return auth.NewProvider(auth.Deps{
			Legacy:   legacy,
			Identity: idp.NewAuth(),
			Captcha:  captcha,
			Logger:   providerLogger,
		})
	}, cfg.Session.IdleTimeout)

	mailer, err := email.NewService(cfg.Email, logger)
	if err != nil {
		return nil, fmt.Errorf("email service: %w", err)
	}
	deps := api.Dependencies{
		Config:   cfg,
		Logger:   logger,
		Build:    buildInfo(),
		Legacy:   legacy,
		Identity: idp,
		Registry: registry,
	}
	if mailer.Enabled() {
		deps.Notifier = mailer
	}

	handler, err := api.NewRouter(ctx, deps)
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	return &application{
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           handler,
			ReadTimeout:       10 * time.Second, // Total time to read request
			WriteTimeout:      30 * time.Second, // Total time to write response
			ReadHeaderTimeout: 5 * time.Second,  // Time to read headers
			MaxHeaderBytes:    1 << 20,          // 1 MB max header size
		},
		registry: registry,
	}, nil
}

// runServer serves until ctx is cancelled, then drains in-flight requests.
func runServer(ctx context.Context, cfg config.Config) error {
	logger := config.NewLogger(cfg.Logging)
	info := buildInfo()
	logger.Info().Str("version", info.Version).Str("environment", cfg.Environment).Msg("starting EventHub")

	metrics.Init(info.Version, info.GitCommit, info.BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, info.Version, cfg.Environment)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.registry.Run(gctx, cfg.Session.SweepInterval)
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", app.server.Addr).Msg("listening")
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
