// Package mailer delivers rendered messages. Every Transport returns nil on
// acceptance or an error classified as transient or permanent with the
// helpers in internal/errors.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/ParasBhendarkar/Simple-email-Sender/internal/model"
)

// Transport names accepted by New.
const (
	TransportSMTP   = "smtp"
	TransportResend = "resend"
	TransportLog    = "log"
)

// Transport delivers one message.
type Transport interface {
	Send(ctx context.Context, msg model.RenderedMessage) error
}

// Options selects and configures a Transport.
type Options struct {
	Transport    string
	Host         string
	Port         int
	Username     string
	Password     string
	FromName     string
	FromEmail    string
	ResendAPIKey string
}

// From formats the sender as a "Name <email>" header value.
func (o Options) From() string {
	if o.FromName == "" {
		return o.FromEmail
	}
	return (&mail.Address{Name: o.FromName, Address: o.FromEmail}).String()
}

// New builds the transport named by opts.Transport.
func New(opts Options, logger *slog.Logger) (Transport, error) {
	switch strings.ToLower(opts.Transport) {
	case TransportSMTP, "":
		return NewSMTPTransport(SMTPConfig{
			Host:     opts.Host,
			Port:     opts.Port,
			Username: opts.Username,
			Password: opts.Password,
			From:     opts.FromEmail,
			FromName: opts.FromName,
		})
	case TransportResend:
		return NewResendTransport(opts.ResendAPIKey, opts.From(), logger), nil
	case TransportLog:
		return NewLogTransport(logger), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", opts.Transport)
	}
}
