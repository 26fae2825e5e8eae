package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML shape accepted by --config. Every field is optional;
// unset fields keep the value from Defaults.
type fileConfig struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Legacy struct {
		BaseURL    string `yaml:"base_url"`
		Timeout    string `yaml:"timeout"`
		WireFormat string `yaml:"wire_format"`
	} `yaml:"legacy_api"`
	Identity struct {
		URL     string `yaml:"url"`
		AnonKey string `yaml:"anon_key"`
		Timeout string `yaml:"timeout"`
	} `yaml:"identity"`
	Session struct {
		ExpiryPolicy  string `yaml:"cookie_expiry"`
		FixedTTL      string `yaml:"cookie_ttl"`
		IdleTimeout   string `yaml:"idle_timeout"`
		SecureCookies *bool  `yaml:"secure_cookies"`
		GuardWait     string `yaml:"guard_wait"`
	} `yaml:"session"`
	Gate struct {
		AuthPrefix      string `yaml:"auth_prefix"`
		ProtectedPrefix string `yaml:"protected_prefix"`
		LoginPath       string `yaml:"login_path"`
		VerifyTokens    *bool  `yaml:"verify_tokens"`
	} `yaml:"gate"`
	Captcha struct {
		SiteKey      string `yaml:"site_key"`
		ReplayWindow string `yaml:"replay_window"`
	} `yaml:"captcha"`
	RateLimit struct {
		PublicPerMinute   int      `yaml:"public_per_minute"`
		LoginPer15Minutes int      `yaml:"login_per_15_minutes"`
		TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`
	} `yaml:"rate_limit"`
	Tracing struct {
		Enabled      *bool   `yaml:"enabled"`
		Exporter     string  `yaml:"exporter"`
		ServiceName  string  `yaml:"service_name"`
		OTLPEndpoint string  `yaml:"otlp_endpoint"`
		OTLPInsecure *bool   `yaml:"otlp_insecure"`
		SampleRate   float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
	Pages struct {
		PurchaseURLTemplate string `yaml:"purchase_url_template"`
		DefaultBannerURL    string `yaml:"default_banner_url"`
	} `yaml:"pages"`
}

// LoadFile reads a YAML config file, overlays it on Defaults, then applies the
// environment. Secrets (anon key aside) are only read from the environment.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	base, err := parseFile(data, Defaults())
	if err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return LoadWithBase(base)
}

func parseFile(data []byte, base Config) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, err
	}

	cfg := base
	var errs []string
	duration := func(field, value string, dst *time.Duration) {
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", field, err))
			return
		}
		*dst = d
	}
	str := func(value string, dst *string) {
		if value != "" {
			*dst = value
		}
	}

	str(fc.Environment, &cfg.Environment)
	str(fc.Server.Host, &cfg.Server.Host)
	if fc.Server.Port != 0 {
		cfg.Server.Port = fc.Server.Port
	}
	str(fc.Server.BaseURL, &cfg.Server.BaseURL)
	str(fc.Logging.Level, &cfg.Logging.Level)
	str(fc.Logging.Format, &cfg.Logging.Format)

	str(strings.TrimRight(fc.Legacy.BaseURL, "/"), &cfg.Legacy.BaseURL)
	duration("legacy_api.timeout", fc.Legacy.Timeout, &cfg.Legacy.Timeout)
	str(strings.ToLower(fc.Legacy.WireFormat), &cfg.Legacy.WireFormat)

	str(strings.TrimRight(fc.Identity.URL, "/"), &cfg.Identity.URL)
	str(fc.Identity.AnonKey, &cfg.Identity.AnonKey)
	duration("identity.timeout", fc.Identity.Timeout, &cfg.Identity.Timeout)

	str(strings.ToLower(fc.Session.ExpiryPolicy), &cfg.Session.ExpiryPolicy)
	duration("session.cookie_ttl", fc.Session.FixedTTL, &cfg.Session.FixedTTL)
	duration("session.idle_timeout", fc.Session.IdleTimeout, &cfg.Session.IdleTimeout)
	duration("session.guard_wait", fc.Session.GuardWait, &cfg.Session.GuardWait)
	if fc.Session.SecureCookies != nil {
		cfg.Session.SecureCookies = *fc.Session.SecureCookies
	}

	str(fc.Gate.AuthPrefix, &cfg.Gate.AuthPrefix)
	str(fc.Gate.ProtectedPrefix, &cfg.Gate.ProtectedPrefix)
	str(fc.Gate.LoginPath, &cfg.Gate.LoginPath)
	if fc.Gate.VerifyTokens != nil {
		cfg.Gate.VerifyTokens = *fc.Gate.VerifyTokens
	}

	str(fc.Captcha.SiteKey, &cfg.Captcha.SiteKey)
	duration("captcha.replay_window", fc.Captcha.ReplayWindow, &cfg.Captcha.ReplayWindow)

	if fc.RateLimit.PublicPerMinute != 0 {
		cfg.RateLimit.PublicPerMinute = fc.RateLimit.PublicPerMinute
	}
	if fc.RateLimit.LoginPer15Minutes != 0 {
		cfg.RateLimit.LoginPer15Minutes = fc.RateLimit.LoginPer15Minutes
	}
	if len(fc.RateLimit.TrustedProxyCIDRs) > 0 {
		cfg.RateLimit.TrustedProxyCIDRs = fc.RateLimit.TrustedProxyCIDRs
	}

	if fc.Tracing.Enabled != nil {
		cfg.Tracing.Enabled = *fc.Tracing.Enabled
	}
	str(fc.Tracing.Exporter, &cfg.Tracing.Exporter)
	str(fc.Tracing.ServiceName, &cfg.Tracing.ServiceName)
	str(fc.Tracing.OTLPEndpoint, &cfg.Tracing.OTLPEndpoint)
	if fc.Tracing.OTLPInsecure != nil {
		cfg.Tracing.OTLPInsecure = *fc.Tracing.OTLPInsecure
	}
	if fc.Tracing.SampleRate != 0 {
		cfg.Tracing.SampleRate = fc.Tracing.SampleRate
	}

	str(fc.Pages.PurchaseURLTemplate, &cfg.Pages.PurchaseURLTemplate)
	str(fc.Pages.DefaultBannerURL, &cfg.Pages.DefaultBannerURL)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid config file: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}
