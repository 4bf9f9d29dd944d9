package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/ParasBhendarkar/Simple-email-Sender/internal/errors"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/logger"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/model"
)

func TestResendTransportSend(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_123"}`))
	}))
	defer srv.Close()

	client := resend.NewClient("re_test")
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	tr := NewResendTransportWithClient(client, "News <news@example.com>", logger.Discard())
	err = tr.Send(context.Background(), model.RenderedMessage{To: "a@x.com", Subject: "Hi", TextBody: "text"})
	require.NoError(t, err)

	assert.Equal(t, "News <news@example.com>", got["from"])
	assert.Equal(t, "Hi", got["subject"])
}

func TestClassifyResendError(t *testing.T) {
	tests := []struct {
		msg  string
		kind string
	}{
		{"[ERROR]: Invalid `to` field", appErrors.KindPermanent},
		{"validation_error: The from address is not verified", appErrors.KindPermanent},
		{"Too many requests", appErrors.KindTransient},
		{"Internal server error", appErrors.KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := classifyResendError(errors.New(tt.msg))
			assert.Equal(t, tt.kind, appErrors.KindOf(err))
		})
	}
}
