package mailer

import (
	"context"
	"log/slog"

	"github.com/ParasBhendarkar/Simple-email-Sender/internal/model"
)

// LogTransport accepts every message and only logs it.
type LogTransport struct {
	Logger *slog.Logger
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{Logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, msg model.RenderedMessage) error {
	t.Logger.InfoContext(ctx, "mail_logged",
		"to", msg.To,
		"subject", msg.Subject,
		"text_bytes", len(msg.TextBody),
		"html_bytes", len(msg.HTMLBody),
	)
	return nil
}
