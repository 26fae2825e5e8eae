// Package email sends operational notifications through Resend.
package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"time"

	"github.com/bodhi-industries/eventhub/internal/config"
	"github.com/bodhi-industries/eventhub/internal/metrics"
	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

//go:embed templates/*.html
var templateFS embed.FS

// ErrThrottled is returned when Resend rejects a send for rate limiting.
var ErrThrottled = errors.New("email rate limit exceeded")

const kindOrganizerInterest = "organizer_interest"

// Service renders notification templates and sends them via Resend.
type Service struct {
	config       config.EmailConfig
	templates    *template.Template
	resendClient *resend.Client
	logger       zerolog.Logger
}

// InterestNotice is the content of an organizer-interest notification.
type InterestNotice struct {
	Name         string
	Email        string
	Organization string
	Description  string
	Phone        string
	SubmittedAt  time.Time
}

// NewService creates a new email service instance. When email is disabled no
// Resend client is created and every send is logged and skipped.
func NewService(cfg config.EmailConfig, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled {
		if err := validateEmailAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender email in config: %w", err)
		}
		if err := validateEmailAddress(cfg.InterestTo); err != nil {
			return nil, fmt.Errorf("invalid notification recipient in config: %w", err)
		}
	}

	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	svc := &Service{
		config:    cfg,
		templates: templates,
		logger:    logger.With().Str("component", "email").Logger(),
	}
	if cfg.Enabled {
		svc.resendClient = resend.NewClient(cfg.ResendAPIKey)
	}
	return svc, nil
}

// Enabled reports whether notifications are actually sent.
func (s *Service) Enabled() bool {
	return s != nil && s.config.Enabled
}

// SendOrganizerInterest tells the operations inbox about a new organizer
// interest submission. The submitter's address is used as Reply-To.
func (s *Service) SendOrganizerInterest(ctx context.Context, notice InterestNotice) error {
	if err := validateEmailAddress(notice.Email); err != nil {
		return fmt.Errorf("invalid submitter email: %w", err)
	}

	if !s.Enabled() {
		s.logger.Info().
			Str("organization", notice.Organization).
			Msg("email service disabled, skipping organizer interest notification")
		metrics.EmailsSentTotal.WithLabelValues(kindOrganizerInterest, "skipped").Inc()
		return nil
	}

	if notice.SubmittedAt.IsZero() {
		notice.SubmittedAt = time.Now()
	}
	htmlBody, err := s.renderTemplate("organizer_interest.html", notice)
	if err != nil {
		return fmt.Errorf("failed to render organizer interest template: %w", err)
	}

	_, err = s.deliver(ctx, outgoing{
		kind:    kindOrganizerInterest,
		to:      s.config.InterestTo,
		replyTo: notice.Email,
		subject: "New organizer interest: " + oneLine(notice.Organization),
		html:    htmlBody,
	})
	if err != nil {
		metrics.EmailsSentTotal.WithLabelValues(kindOrganizerInterest, "error").Inc()
		return fmt.Errorf("failed to send organizer interest notification: %w", err)
	}
	metrics.EmailsSentTotal.WithLabelValues(kindOrganizerInterest, "sent").Inc()
	return nil
}

// validateEmailAddress validates an email address for format and header injection attempts
func validateEmailAddress(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("invalid email address: contains newline characters")
	}
	return nil
}

// oneLine keeps user text out of mail headers' line structure.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// renderTemplate renders an email template with the given data
func (s *Service) renderTemplate(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return buf.String(), nil
}
