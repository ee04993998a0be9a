package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

type recordingSender struct {
	name string
	err  error

	mu   sync.Mutex
	msgs []Message
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyUserRoutesToUserAndFilteredOperators(t *testing.T) {
	user := &recordingSender{name: "telegram"}
	ops := &recordingSender{name: "discord"}
	n := NewNotifier(user, []Sender{ops}, []string{"risk_alert", " hedge_executed "}, discardLogger())

	require.NoError(t, n.NotifyUser(context.Background(), 42, "no_risk", "BTC", "fine"))
	require.NoError(t, n.NotifyUser(context.Background(), 42, "hedge_executed", "BTC", "hedged"))

	require.Len(t, user.msgs, 2)
	assert.Equal(t, int64(42), user.msgs[0].ChatID)
	assert.Equal(t, "fine", user.msgs[0].Body)

	require.Len(t, ops.msgs, 1)
	assert.Equal(t, "BTC", ops.msgs[0].Title)
	assert.Contains(t, ops.msgs[0].Body, "user 42")
	assert.Contains(t, ops.msgs[0].Body, "hedged")
}

func TestNotifyUserEmptyFilterMirrorsAll(t *testing.T) {
	user := &recordingSender{name: "telegram"}
	ops := &recordingSender{name: "discord"}
	n := NewNotifier(user, []Sender{ops}, nil, discardLogger())

	require.NoError(t, n.NotifyUser(context.Background(), 1, "anything", "t", "b"))
	assert.Len(t, ops.msgs, 1)
}

func TestNotifyUserWithoutUserChannel(t *testing.T) {
	n := NewNotifier(nil, nil, nil, discardLogger())
	err := n.NotifyUser(context.Background(), 42, "hedge_failed", "BTC", "order rejected")
	assert.ErrorIs(t, err, ErrNoUserChannel)

	ops := &recordingSender{name: "discord"}
	n = NewNotifier(nil, []Sender{ops}, nil, discardLogger())
	err = n.NotifyUser(context.Background(), 42, "hedge_failed", "BTC", "order rejected")
	assert.ErrorIs(t, err, ErrNoUserChannel)
	require.Len(t, ops.msgs, 1)
	assert.Contains(t, ops.msgs[0].Body, "user 42")
}

func TestNotifyUserCollectsFailures(t *testing.T) {
	user := &recordingSender{name: "telegram", err: errors.New("blocked by user")}
	good := &recordingSender{name: "discord"}
	bad := &recordingSender{name: "ops-telegram", err: errors.New("timeout")}
	n := NewNotifier(user, []Sender{bad, good}, nil, discardLogger())

	err := n.NotifyUser(context.Background(), 7, "risk_alert", "t", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 sender(s) failed")
	assert.Contains(t, err.Error(), "blocked by user")
	assert.ErrorIs(t, err, user.err)
	assert.ErrorIs(t, err, bad.err)
	assert.Len(t, good.msgs, 1)
}

func TestNotifyAllIgnoresFilter(t *testing.T) {
	user := &recordingSender{name: "telegram"}
	ops := &recordingSender{name: "discord"}
	n := NewNotifier(user, []Sender{ops}, []string{"risk_alert"}, discardLogger())

	require.NoError(t, n.NotifyAll(context.Background(), "startup", "hedgebot running"))
	assert.Empty(t, user.msgs)
	assert.Len(t, ops.msgs, 1)
}

func TestMessageText(t *testing.T) {
	assert.Equal(t, "a\n\nb", Message{Title: "a", Body: "b"}.Text())
	assert.Equal(t, "b", Message{Body: "b"}.Text())
	assert.Equal(t, "a", Message{Title: "a"}.Text())
}

func TestTelegramSender(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL, "TOKEN", 99)
	require.NoError(t, s.Send(context.Background(), Message{ChatID: 123, Title: "BTC", Body: "ok"}))
	assert.Equal(t, float64(123), got["chat_id"])
	assert.Equal(t, "BTC\n\nok", got["text"])

	require.NoError(t, s.Send(context.Background(), Message{Body: "mirror"}))
	assert.Equal(t, float64(99), got["chat_id"])

	op := s.OperatorChat()
	require.NoError(t, op.Send(context.Background(), Message{ChatID: 123, Title: "BTC", Body: "alert"}))
	assert.Equal(t, float64(99), got["chat_id"])
	assert.Equal(t, "telegram_operator", op.Name())
}

func TestTelegramSenderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL, "TOKEN", 0)
	err := s.Send(context.Background(), Message{ChatID: 5, Body: "x"})
	assert.ErrorContains(t, err, "chat not found")

	assert.Error(t, s.Send(context.Background(), Message{Body: "no chat"}))
}

func TestDiscordSender(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	s.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }

	msg := Message{Event: "hedge_failed", Title: "BTC", Body: strings.Repeat("x", 5000)}
	require.NoError(t, s.Send(context.Background(), msg))
	require.Len(t, got.Embeds, 1)
	e := got.Embeds[0]
	assert.Equal(t, "hedgebot", got.Username)
	assert.Equal(t, "BTC", e.Title)
	assert.Equal(t, 0xE74C3C, e.Color)
	assert.Equal(t, "2024-03-01T10:00:00Z", e.Timestamp)
	require.NotNil(t, e.Footer)
	assert.Equal(t, "hedge_failed", e.Footer.Text)
	assert.Len(t, []rune(e.Description), discordDescLimit)
	assert.True(t, strings.HasSuffix(e.Description, "..."))

	got = discordPayload{}
	require.NoError(t, s.Send(context.Background(), Message{Title: "startup"}))
	assert.Equal(t, discordDefaultColor, got.Embeds[0].Color)
	assert.Nil(t, got.Embeds[0].Footer)
}

func TestDiscordSenderRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), Message{Title: "t"})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}
