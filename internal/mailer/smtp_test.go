package mailer

import (
	"context"
	"net"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/ParasBhendarkar/Simple-email-Sender/internal/errors"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/model"
)

// startFakeSMTP serves a single SMTP session and answers RCPT with rcptReply.
func startFakeSMTP(t *testing.T, rcptReply string) (string, int, <-chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			cmd := strings.ToUpper(line)
			switch {
			case strings.HasPrefix(cmd, "EHLO"):
				_ = tp.PrintfLine("250-localhost")
				_ = tp.PrintfLine("250 8BITMIME")
			case strings.HasPrefix(cmd, "HELO"), strings.HasPrefix(cmd, "MAIL"):
				_ = tp.PrintfLine("250 OK")
			case strings.HasPrefix(cmd, "RCPT"):
				_ = tp.PrintfLine("%s", rcptReply)
			case strings.HasPrefix(cmd, "DATA"):
				_ = tp.PrintfLine("354 go ahead")
				lines, err := tp.ReadDotLines()
				if err != nil {
					return
				}
				received <- strings.Join(lines, "\n")
				_ = tp.PrintfLine("250 queued")
			case strings.HasPrefix(cmd, "QUIT"):
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("502 not implemented")
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, received
}

func newTestSMTP(t *testing.T, host string, port int) *SMTPTransport {
	t.Helper()
	tr, err := NewSMTPTransport(SMTPConfig{Host: host, Port: port, From: "news@example.com", FromName: "News Desk"})
	require.NoError(t, err)
	return tr
}

func TestSMTPTransportSend(t *testing.T) {
	host, port, received := startFakeSMTP(t, "250 OK")
	tr := newTestSMTP(t, host, port)

	err := tr.Send(context.Background(), model.RenderedMessage{
		To:       "alice@example.com",
		Subject:  "Hello Alice",
		TextBody: "Hi Alice",
	})
	require.NoError(t, err)

	data := <-received
	assert.Contains(t, data, `From: "News Desk" <news@example.com>`)
	assert.Contains(t, data, "To: alice@example.com")
	assert.Contains(t, data, "Subject: Hello Alice")
	assert.Contains(t, data, "Hi Alice")
}

func TestSMTPTransportClassifiesReplies(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		kind  string
	}{
		{"mailbox busy", "451 4.7.1 try again later", appErrors.KindTransient},
		{"unknown user", "550 5.1.1 no such user", appErrors.KindPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, _ := startFakeSMTP(t, tt.reply)
			tr := newTestSMTP(t, host, port)

			err := tr.Send(context.Background(), model.RenderedMessage{To: "bob@example.com", Subject: "s", TextBody: "b"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, appErrors.KindOf(err))
		})
	}
}

func TestSMTPTransportCredentialsWithoutAuthExtension(t *testing.T) {
	host, port, received := startFakeSMTP(t, "250 OK")
	tr, err := NewSMTPTransport(SMTPConfig{
		Host:     host,
		Port:     port,
		Username: "user",
		Password: "secret",
		From:     "news@example.com",
	})
	require.NoError(t, err)

	err = tr.Send(context.Background(), model.RenderedMessage{To: "bob@example.com", Subject: "s", TextBody: "b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSMTPAuthUnsupported)
	assert.Equal(t, appErrors.KindPermanent, appErrors.KindOf(err))
	assert.Empty(t, received, "nothing is sent unauthenticated")
}

func TestSMTPTransportConnectionRefusedIsTransient(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	tr := newTestSMTP(t, "127.0.0.1", port)
	err = tr.Send(context.Background(), model.RenderedMessage{To: "bob@example.com", Subject: "s", TextBody: "b"})
	require.Error(t, err)
	assert.Equal(t, appErrors.KindTransient, appErrors.KindOf(err))
}

func TestSMTPTransportRejectsMalformedRecipient(t *testing.T) {
	tr := newTestSMTP(t, "127.0.0.1", 25)
	err := tr.Send(context.Background(), model.RenderedMessage{To: "not an address"})
	require.Error(t, err)
	assert.Equal(t, appErrors.KindPermanent, appErrors.KindOf(err))
}

func TestNewSMTPTransportRequiresHostAndSender(t *testing.T) {
	_, err := NewSMTPTransport(SMTPConfig{Port: 587, From: "a@x.com"})
	assert.ErrorIs(t, err, ErrSMTPHostPortRequired)

	_, err = NewSMTPTransport(SMTPConfig{Host: "smtp.example.com", Port: 587})
	assert.ErrorIs(t, err, ErrSMTPNoSender)
}

func TestBuildBodyMultipart(t *testing.T) {
	body, contentType := buildBody(model.RenderedMessage{TextBody: "plain", HTMLBody: "<p>html</p>"})
	assert.True(t, strings.HasPrefix(contentType, "multipart/alternative; boundary="))
	assert.Contains(t, body, "plain")
	assert.Contains(t, body, "<p>html</p>")

	body, contentType = buildBody(model.RenderedMessage{TextBody: "plain"})
	assert.Equal(t, "plain", body)
	assert.Equal(t, "text/plain; charset=UTF-8", contentType)
}

func TestClassifyAuthError(t *testing.T) {
	err := classifyAuthError(&textproto.Error{Code: 535, Msg: "authentication failed"})
	assert.Equal(t, appErrors.KindPermanent, appErrors.KindOf(err))

	err = classifyAuthError(&textproto.Error{Code: 454, Msg: "temporary auth failure"})
	assert.Equal(t, appErrors.KindTransient, appErrors.KindOf(err))
}
