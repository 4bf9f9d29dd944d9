package mailer

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	appErrors "github.com/ParasBhendarkar/Simple-email-Sender/internal/errors"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/model"
)

var (
	// ErrSMTPHostPortRequired is returned when Host or Port are missing.
	ErrSMTPHostPortRequired = errors.New("smtp host and port are required")
	// ErrSMTPNoSender is returned when no From address is configured.
	ErrSMTPNoSender = errors.New("no sender provided")
	// ErrSMTPAuthUnsupported is returned when credentials are configured but
	// the server does not offer AUTH.
	ErrSMTPAuthUnsupported = errors.New("smtp server does not support AUTH")
)

// SMTPConfig configures SMTPTransport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// Timeout bounds dialing and the whole SMTP conversation. Zero means 30s.
	Timeout time.Duration
}

// SMTPTransport sends through an SMTP relay, upgrading with STARTTLS when the
// server offers it.
type SMTPTransport struct {
	addr    string
	host    string
	from    string
	header  string
	auth    smtp.Auth
	timeout time.Duration
	tls     *tls.Config
}

func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, ErrSMTPHostPortRequired
	}
	if cfg.From == "" {
		return nil, ErrSMTPNoSender
	}

	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &SMTPTransport{
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		host:    cfg.Host,
		from:    cfg.From,
		header:  Options{FromName: cfg.FromName, FromEmail: cfg.From}.From(),
		auth:    auth,
		timeout: timeout,
		tls:     &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
	}, nil
}

// Send delivers msg. Reply codes 4xx and network failures are transient,
// 5xx replies are permanent.
func (s *SMTPTransport) Send(ctx context.Context, msg model.RenderedMessage) error {
	if err := ctx.Err(); err != nil {
		return appErrors.Transient(err)
	}
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return appErrors.Permanent(fmt.Errorf("recipient %q: %w", msg.To, err))
	}

	dialer := &net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return appErrors.Transient(fmt.Errorf("dial %s: %w", s.addr, err))
	}
	_ = conn.SetDeadline(time.Now().Add(s.timeout))

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return classifySMTPError("greeting", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(s.tls); err != nil {
			return classifySMTPError("starttls", err)
		}
	}

	if s.auth != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return appErrors.Permanent(ErrSMTPAuthUnsupported)
		}
		if err := c.Auth(s.auth); err != nil {
			return classifyAuthError(err)
		}
	}

	if err := c.Mail(s.from); err != nil {
		return classifySMTPError("mail from", err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return classifySMTPError("rcpt to", err)
	}

	w, err := c.Data()
	if err != nil {
		return classifySMTPError("data", err)
	}
	if _, err := w.Write(s.buildMessage(msg)); err != nil {
		return classifySMTPError("data", err)
	}
	if err := w.Close(); err != nil {
		return classifySMTPError("data", err)
	}

	// accepted once DATA is closed; a failing QUIT does not change that
	_ = c.Quit()
	return nil
}

func (s *SMTPTransport) buildMessage(msg model.RenderedMessage) []byte {
	body, contentType := buildBody(msg)

	headers := []string{
		"From: " + s.header,
		"To: " + msg.To,
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date: " + time.Now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: " + contentType,
	}

	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + body)
}

func buildBody(msg model.RenderedMessage) (body string, contentType string) {
	if msg.HTMLBody != "" && msg.TextBody != "" {
		boundary := multipartBoundary()
		var sb strings.Builder
		sb.WriteString("This is a multipart message in MIME format.\r\n")
		fmt.Fprintf(&sb, "--%s\r\n", boundary)
		sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		sb.WriteString(msg.TextBody)
		sb.WriteString("\r\n")
		fmt.Fprintf(&sb, "--%s\r\n", boundary)
		sb.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		sb.WriteString(msg.HTMLBody)
		sb.WriteString("\r\n")
		fmt.Fprintf(&sb, "--%s--", boundary)
		return sb.String(), fmt.Sprintf("multipart/alternative; boundary=%s", boundary)
	}

	if msg.HTMLBody != "" {
		return msg.HTMLBody, "text/html; charset=UTF-8"
	}

	return msg.TextBody, "text/plain; charset=UTF-8"
}

func multipartBoundary() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "sender-boundary-fallback"
	}
	return "sender-boundary-" + hex.EncodeToString(b[:])
}

func classifySMTPError(stage string, err error) error {
	wrapped := fmt.Errorf("smtp %s: %w", stage, err)

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		if tpErr.Code >= 500 {
			return appErrors.Permanent(wrapped)
		}
		return appErrors.Transient(wrapped)
	}

	// network errors, timeouts and dropped connections
	return appErrors.Transient(wrapped)
}

// classifyAuthError treats rejected credentials and refused plaintext auth as
// permanent; retrying the same recipient cannot fix either.
func classifyAuthError(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return classifySMTPError("auth", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) {
		return appErrors.Transient(fmt.Errorf("smtp auth: %w", err))
	}
	return appErrors.Permanent(fmt.Errorf("smtp auth: %w", err))
}
