package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Logging     LoggingConfig
	Legacy      LegacyConfig
	Identity    IdentityConfig
	Session     SessionConfig
	Gate        GateConfig
	Captcha     CaptchaConfig
	CSRF        CSRFConfig
	RateLimit   RateLimitConfig
	Tracing     TracingConfig
	Email       EmailConfig
	Pages       PagesConfig
	Environment string
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// LegacyConfig describes the legacy REST backend that owns organizer
// accounts, events and ticket tiers.
type LegacyConfig struct {
	BaseURL    string
	Timeout    time.Duration
	WireFormat string // "json" or "enveloped"
}

// IdentityConfig describes the hosted identity provider (GoTrue API).
type IdentityConfig struct {
	URL       string
	AnonKey   string
	JWTSecret string
	Timeout   time.Duration
}

type SessionConfig struct {
	CookieName    string
	BrowserCookie string
	ExpiryPolicy  string // "token" or "fixed"
	FixedTTL      time.Duration
	IdleTimeout   time.Duration
	SecureCookies bool
	GuardWait     time.Duration
	SweepInterval time.Duration
}

type GateConfig struct {
	AuthPrefix      string
	ProtectedPrefix string
	LoginPath       string
	VerifyTokens    bool
}

type CaptchaConfig struct {
	SiteKey      string
	ReplayWindow time.Duration
}

type CSRFConfig struct {
	AuthKey string
}

type RateLimitConfig struct {
	PublicPerMinute   int
	LoginPer15Minutes int
	TrustedProxyCIDRs []string
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	OTLPInsecure bool
	SampleRate   float64
}

type EmailConfig struct {
	Enabled      bool
	ResendAPIKey string
	From         string
	InterestTo   string
}

type PagesConfig struct {
	PurchaseURLTemplate string
	DefaultBannerURL    string
}

const (
	ExpiryFromToken = "token"
	ExpiryFixed     = "fixed"

	WireJSON      = "json"
	WireEnveloped = "enveloped"
)

// Defaults returns the configuration used when no file or environment
// overrides are present.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			BaseURL: "http://localhost:8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Legacy: LegacyConfig{
			BaseURL:    "https://api.cftx.net/prod-cached",
			Timeout:    10 * time.Second,
			WireFormat: WireJSON,
		},
		Identity: IdentityConfig{
			Timeout: 10 * time.Second,
		},
		Session: SessionConfig{
			CookieName:    "supabase-auth-token",
			BrowserCookie: "eventhub_session",
			ExpiryPolicy:  ExpiryFromToken,
			FixedTTL:      24 * time.Hour,
			IdleTimeout:   2 * time.Hour,
			GuardWait:     2 * time.Second,
			SweepInterval: 5 * time.Minute,
		},
		Gate: GateConfig{
			AuthPrefix:      "/auth",
			ProtectedPrefix: "/dashboard",
			LoginPath:       "/auth/login",
		},
		Captcha: CaptchaConfig{
			ReplayWindow: 10 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute:   120,
			LoginPer15Minutes: 5,
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			ServiceName: "eventhub-web",
			SampleRate:  1.0,
		},
		Email: EmailConfig{
			From: "EventHub <no-reply@eventhub.local>",
		},
		Pages: PagesConfig{
			PurchaseURLTemplate: "https://www.cedarfallsdata.com/event/{event}/{tier}/purchase",
			DefaultBannerURL:    "https://images.unsplash.com/photo-1501281668745-f7f57925c3b4?auto=format&fit=crop&q=80",
		},
		Environment: "development",
	}
}

// Load reads configuration from the environment on top of Defaults.
func Load() (Config, error) {
	return LoadWithBase(Defaults())
}

// LoadWithBase applies environment overrides to base, typically the result of
// a YAML file overlay, and validates the result.
func LoadWithBase(base Config) (Config, error) {
	cfg := base

	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.BaseURL = getEnv("SERVER_BASE_URL", cfg.Server.BaseURL)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Legacy.BaseURL = strings.TrimRight(getEnv("LEGACY_API_URL", cfg.Legacy.BaseURL), "/")
	cfg.Legacy.Timeout = getEnvDuration("LEGACY_API_TIMEOUT", cfg.Legacy.Timeout)
	cfg.Legacy.WireFormat = strings.ToLower(getEnv("LEGACY_API_WIRE_FORMAT", cfg.Legacy.WireFormat))

	cfg.Identity.URL = strings.TrimRight(getEnv("SUPABASE_URL", cfg.Identity.URL), "/")
	cfg.Identity.AnonKey = getEnv("SUPABASE_ANON_KEY", cfg.Identity.AnonKey)
	cfg.Identity.JWTSecret = getEnv("SUPABASE_JWT_SECRET", cfg.Identity.JWTSecret)
	cfg.Identity.Timeout = getEnvDuration("SUPABASE_TIMEOUT", cfg.Identity.Timeout)

	cfg.Session.ExpiryPolicy = strings.ToLower(getEnv("SESSION_COOKIE_EXPIRY", cfg.Session.ExpiryPolicy))
	cfg.Session.FixedTTL = getEnvDuration("SESSION_COOKIE_TTL", cfg.Session.FixedTTL)
	cfg.Session.IdleTimeout = getEnvDuration("SESSION_IDLE_TIMEOUT", cfg.Session.IdleTimeout)
	cfg.Session.SecureCookies = getEnvBool("SESSION_SECURE_COOKIES", cfg.Session.SecureCookies)
	cfg.Session.GuardWait = getEnvDuration("GUARD_WAIT", cfg.Session.GuardWait)

	cfg.Gate.VerifyTokens = getEnvBool("GATE_VERIFY_TOKENS", cfg.Gate.VerifyTokens)

	cfg.Captcha.SiteKey = getEnv("TURNSTILE_SITE_KEY", cfg.Captcha.SiteKey)
	cfg.Captcha.ReplayWindow = getEnvDuration("CAPTCHA_REPLAY_WINDOW", cfg.Captcha.ReplayWindow)

	cfg.CSRF.AuthKey = getEnv("CSRF_AUTH_KEY", cfg.CSRF.AuthKey)

	cfg.RateLimit.PublicPerMinute = getEnvInt("RATE_LIMIT_PUBLIC", cfg.RateLimit.PublicPerMinute)
	cfg.RateLimit.LoginPer15Minutes = getEnvInt("RATE_LIMIT_LOGIN", cfg.RateLimit.LoginPer15Minutes)
	if cidrs := getEnvList("TRUSTED_PROXY_CIDRS"); cidrs != nil {
		cfg.RateLimit.TrustedProxyCIDRs = cidrs
	}

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnv("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.ServiceName = getEnv("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.OTLPInsecure = getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Tracing.OTLPInsecure)
	cfg.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)

	cfg.Email.ResendAPIKey = getEnv("RESEND_API_KEY", cfg.Email.ResendAPIKey)
	cfg.Email.From = getEnv("EMAIL_FROM", cfg.Email.From)
	cfg.Email.InterestTo = getEnv("ORGANIZER_INTEREST_NOTIFY", cfg.Email.InterestTo)
	cfg.Email.Enabled = cfg.Email.ResendAPIKey != "" && cfg.Email.InterestTo != ""

	cfg.Pages.PurchaseURLTemplate = getEnv("PURCHASE_URL_TEMPLATE", cfg.Pages.PurchaseURLTemplate)
	cfg.Pages.DefaultBannerURL = getEnv("DEFAULT_BANNER_URL", cfg.Pages.DefaultBannerURL)

	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Legacy.WireFormat {
	case WireJSON, WireEnveloped:
	default:
		return fmt.Errorf("LEGACY_API_WIRE_FORMAT must be %q or %q, got %q", WireJSON, WireEnveloped, c.Legacy.WireFormat)
	}
	switch c.Session.ExpiryPolicy {
	case ExpiryFromToken, ExpiryFixed:
	default:
		return fmt.Errorf("SESSION_COOKIE_EXPIRY must be %q or %q, got %q", ExpiryFromToken, ExpiryFixed, c.Session.ExpiryPolicy)
	}
	if c.Session.FixedTTL <= 0 {
		return fmt.Errorf("SESSION_COOKIE_TTL must be positive")
	}
	if c.Gate.VerifyTokens && c.Identity.JWTSecret == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET is required when GATE_VERIFY_TOKENS is enabled")
	}
	if c.CSRF.AuthKey != "" && len(c.CSRF.AuthKey) != 32 {
		return fmt.Errorf("CSRF_AUTH_KEY must be exactly 32 bytes, got %d", len(c.CSRF.AuthKey))
	}

	if c.IsProduction() {
		if c.Identity.URL == "" {
			return fmt.Errorf("SUPABASE_URL is required in production")
		}
		if c.Identity.AnonKey == "" {
			return fmt.Errorf("SUPABASE_ANON_KEY is required in production")
		}
		if c.CSRF.AuthKey == "" {
			return fmt.Errorf("CSRF_AUTH_KEY is required in production")
		}
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration accepts Go duration strings ("90s", "24h").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
