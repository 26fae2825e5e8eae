package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bodhi-industries/eventhub/internal/config"
	"github.com/rs/zerolog"
)

func TestServeCommandHelp(t *testing.T) {
	cmd := newServeCommand(&globalFlags{})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("serve command --help failed: %v", err)
	}

	for _, expected := range []string{"Start the EventHub HTTP server", "--host", "--port"} {
		if !strings.Contains(buf.String(), expected) {
			t.Errorf("expected help text to contain %q, got:\n%s", expected, buf.String())
		}
	}
}

func TestServeCommandRejectsBadPort(t *testing.T) {
	cmd := newServeCommand(&globalFlags{})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--port", "not-a-number"})

	if err := cmd.Execute(); err == nil {
		t.Error("expected error for a non-numeric port")
	}
}

func clearServerEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"SERVER_HOST", "SERVER_PORT", "LOG_LEVEL", "LOG_FORMAT", "ENVIRONMENT", "LEGACY_API_URL"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigLayers(t *testing.T) {
	clearServerEnv(t)

	path := filepath.Join(t.TempDir(), "eventhub.yaml")
	yaml := `
environment: staging
server:
  host: 127.0.0.1
  port: 9100
logging:
  level: debug
legacy_api:
  base_url: https://legacy.example.com/
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Run("file only", func(t *testing.T) {
		cfg, err := loadConfig(&globalFlags{configPath: path}, &serveFlags{})
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if cfg.Server.Port != 9100 || cfg.Server.Host != "127.0.0.1" {
			t.Errorf("expected 127.0.0.1:9100 from file, got %s:%d", cfg.Server.Host, cfg.Server.Port)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug level from file, got %q", cfg.Logging.Level)
		}
		if cfg.Environment != "staging" {
			t.Errorf("expected staging, got %q", cfg.Environment)
		}
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("SERVER_PORT", "9150")
		cfg, err := loadConfig(&globalFlags{configPath: path}, &serveFlags{})
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if cfg.Server.Port != 9150 {
			t.Errorf("expected env port 9150, got %d", cfg.Server.Port)
		}
	})

	t.Run("flags over env", func(t *testing.T) {
		t.Setenv("SERVER_PORT", "9150")
		cfg, err := loadConfig(
			&globalFlags{configPath: path, logLevel: "warn", logFormat: "console"},
			&serveFlags{host: "0.0.0.0", port: 9200},
		)
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if cfg.Server.Port != 9200 || cfg.Server.Host != "0.0.0.0" {
			t.Errorf("expected flag address, got %s:%d", cfg.Server.Host, cfg.Server.Port)
		}
		if cfg.Logging.Level != "warn" || cfg.Logging.Format != "console" {
			t.Errorf("expected flag logging, got %+v", cfg.Logging)
		}
	})
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearServerEnv(t)

	_, err := loadConfig(&globalFlags{configPath: filepath.Join(t.TempDir(), "missing.yaml")}, &serveFlags{})
	if err == nil {
		t.Error("expected error for a missing config file")
	}
}

func testConfig(legacyURL string) config.Config {
	cfg := config.Defaults()
	cfg.Environment = "test"
	cfg.Logging.Level = "disabled"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Legacy.BaseURL = legacyURL
	return cfg
}

func TestNewApplicationServesProbes(t *testing.T) {
	legacy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer legacy.Close()

	setBuildVars(t, "2.0.0", "feedbeef", "2026-10-01")

	app, err := newApplication(t.Context(), testConfig(legacy.URL), zerolog.Nop())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	srv := httptest.NewServer(app.server.Handler)
	defer srv.Close()

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{path: "/healthz", status: http.StatusOK, contains: `"status":"ok"`},
		{path: "/readyz", status: http.StatusOK, contains: `"legacy_api"`},
		{path: "/version", status: http.StatusOK, contains: `"version":"2.0.0"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.path, err)
			}
			defer func() { _ = resp.Body.Close() }()
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			if !strings.Contains(string(body), tt.contains) {
				t.Errorf("expected body to contain %q, got %s", tt.contains, body)
			}
		})
	}
}

func TestNewApplicationRejectsProductionWithoutCSRFKey(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Environment = "production"

	if _, err := newApplication(t.Context(), cfg, zerolog.Nop()); err == nil {
		t.Error("expected error when production has no CSRF key")
	}
}

func TestRunServerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, testConfig("http://127.0.0.1:1")) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
