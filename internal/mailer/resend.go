package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/resend/resend-go/v2"

	appErrors "github.com/ParasBhendarkar/Simple-email-Sender/internal/errors"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/model"
)

// ResendTransport sends through the Resend HTTP API.
type ResendTransport struct {
	client *resend.Client
	from   string
	logger *slog.Logger
}

func NewResendTransport(apiKey, from string, logger *slog.Logger) *ResendTransport {
	return &ResendTransport{
		client: resend.NewClient(apiKey),
		from:   from,
		logger: logger,
	}
}

// NewResendTransportWithClient uses a preconfigured client, e.g. one pointed
// at a different base URL.
func NewResendTransportWithClient(client *resend.Client, from string, logger *slog.Logger) *ResendTransport {
	return &ResendTransport{client: client, from: from, logger: logger}
}

func (s *ResendTransport) Send(ctx context.Context, msg model.RenderedMessage) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.TextBody,
		Html:    msg.HTMLBody,
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		s.logger.ErrorContext(ctx, "resend_send_failed", "error", err, "to", msg.To)
		return classifyResendError(err)
	}

	s.logger.DebugContext(ctx, "resend_sent", "message_id", sent.Id, "to", msg.To)
	return nil
}

var permanentResendMarkers = []string{
	"validation",
	"invalid",
	"not allowed",
	"not verified",
	"missing required",
	"unauthorized",
	"forbidden",
}

// classifyResendError decides from the API message since the client returns
// plain errors. Anything unrecognized is retried.
func classifyResendError(err error) error {
	wrapped := fmt.Errorf("resend send failed: %w", err)
	msg := strings.ToLower(err.Error())
	for _, marker := range permanentResendMarkers {
		if strings.Contains(msg, marker) {
			return appErrors.Permanent(wrapped)
		}
	}
	return appErrors.Transient(wrapped)
}
