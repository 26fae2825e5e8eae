package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// outgoing is one rendered notification ready for delivery.
type outgoing struct {
	kind    string
	to      string
	replyTo string
	subject string
	html    string
}

func (m outgoing) request(from string) *resend.SendEmailRequest {
	return &resend.SendEmailRequest{
		From:    from,
		To:      []string{m.to},
		ReplyTo: m.replyTo,
		Subject: m.subject,
		Html:    m.html,
		Tags:    []resend.Tag{{Name: "notification", Value: m.kind}},
	}
}

// deliver hands msg to Resend and returns the provider's message id.
// Throttled sends fail with ErrThrottled and are not retried.
func (s *Service) deliver(ctx context.Context, msg outgoing) (string, error) {
	if s.resendClient == nil {
		return "", errors.New("resend client not initialized")
	}

	sent, err := s.resendClient.Emails.SendWithContext(ctx, msg.request(s.config.From))
	var throttled *resend.RateLimitError
	switch {
	case errors.As(err, &throttled):
		s.logger.Warn().
			Str("kind", msg.kind).
			Str("limit", throttled.Limit).
			Str("reset", throttled.Reset).
			Msg("resend throttled notification")
		return "", fmt.Errorf("%w: resets in %ss: %w", ErrThrottled, throttled.Reset, err)
	case err != nil:
		return "", fmt.Errorf("resend API error: %w", err)
	}

	s.logger.Info().
		Str("kind", msg.kind).
		Str("email_id", sent.Id).
		Msg("notification sent")
	return sent.Id, nil
}
