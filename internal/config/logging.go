package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const serviceName = "eventhub-web"

// NewLogger builds the process logger on stdout and installs it as the
// zerolog global so packages using the log package share its settings.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	logger := newLogger(cfg, os.Stdout)
	log.Logger = logger
	return logger
}

func newLogger(cfg LoggingConfig, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level := logLevel(cfg.Level)
	ctx := zerolog.New(logWriter(cfg.Format, out)).Level(level).With().
		Timestamp().
		Str("service", serviceName)
	if level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// logLevel falls back to info for empty or unknown names.
func logLevel(name string) zerolog.Level {
	if name == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func logWriter(format string, out io.Writer) io.Writer {
	if !strings.EqualFold(format, "console") {
		return out
	}
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
}
