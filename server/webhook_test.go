package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"Genie/core"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *[]tgbotapi.Update) {
	t.Helper()
	conf := &core.Config{TelegramApiKey: "123:abc"}
	conf.Webhook.URL = "https://genie.example.com/"
	conf.Webhook.Secret = "s3cret"
	conf.Webhook.Port = "0"

	var received []tgbotapi.Update
	s := NewServer(conf, slog.New(slog.NewTextHandler(io.Discard, nil)), func(update tgbotapi.Update) {
		received = append(received, update)
	})
	return s, &received
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	resp := httptest.NewRecorder()
	s.Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Bot is running", resp.Body.String())
}

func TestWebhook_DeliversUpdate(t *testing.T) {
	s, received := newTestServer(t)

	body := `{"update_id":7,"message":{"message_id":1,"from":{"id":42,"first_name":"Ada"},
		"chat":{"id":42,"type":"private"},"date":1,"text":"hello"}}`
	resp := httptest.NewRecorder()
	s.Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/webhook/s3cret", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, *received, 1)
	update := (*received)[0]
	assert.Equal(t, 7, update.UpdateID)
	require.NotNil(t, update.Message)
	assert.Equal(t, 42, update.Message.From.ID)
	assert.Equal(t, "hello", update.Message.Text)
}

func TestWebhook_RejectsWrongSecret(t *testing.T) {
	s, received := newTestServer(t)

	resp := httptest.NewRecorder()
	s.Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/webhook/guess", strings.NewReader(`{"update_id":1}`)))

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Empty(t, *received)
}

func TestWebhook_RejectsMalformedBody(t *testing.T) {
	s, received := newTestServer(t)

	resp := httptest.NewRecorder()
	s.Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/webhook/s3cret", strings.NewReader(`{not json`)))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, *received)
}

func TestWebhookURL(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, "https://genie.example.com/webhook/s3cret", s.WebhookURL())

	conf := &core.Config{TelegramApiKey: "123:abc"}
	derived := NewServer(conf, slog.New(slog.NewTextHandler(io.Discard, nil)), func(tgbotapi.Update) {})
	assert.NotContains(t, derived.WebhookURL(), "123:abc")
	assert.Len(t, derived.secret, 32)
}
