package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitadpal/voran/internal/domain"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{domain.EventResolutionFailed}, discard())

	require.NoError(t, n.Notify(context.Background(), domain.EventResolutionSigned, "a", "b"))
	assert.Empty(t, s.titles)

	require.NoError(t, n.Notify(context.Background(), domain.EventResolutionFailed, "a", "b"))
	assert.Equal(t, []string{"a"}, s.titles)
}

func TestNotifierContinuesPastFailures(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordingSender{name: "bad", err: boom}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.Notify(context.Background(), "any", "t", "m")
	assert.ErrorIs(t, err, boom)
	assert.Len(t, good.titles, 1)
}

func TestFormatEvent(t *testing.T) {
	title, msg := FormatEvent(domain.ResolutionEvent{
		Event:    domain.EventResolutionSigned,
		MarketID: "btc-100k",
		Payload:  &domain.SignedPayload{ParsedValue: "105000.5", Result: true, ExecutedAt: 17},
	})
	assert.Equal(t, "Resolution signed", title)
	assert.Contains(t, msg, "value: 105000.5")
	assert.Contains(t, msg, "result: true")

	title, msg = FormatEvent(domain.ResolutionEvent{
		Event:    domain.EventResolutionFailed,
		MarketID: "btc-100k",
		Stage:    domain.StageFetch,
		Error:    "fetch failed",
	})
	assert.Equal(t, "Resolution failed", title)
	assert.Contains(t, msg, "stage: fetch")
}

func TestTelegramSender(t *testing.T) {
	var path string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL+"/", "TOKEN", "42")
	require.NoError(t, s.Send(context.Background(), "title", "line"))
	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "title\nline", body["text"])
}

func TestDiscordSenderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL, "voran").Send(context.Background(), "t", "m")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
