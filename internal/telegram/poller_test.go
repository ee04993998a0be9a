package telegram

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/command"
)

type echoHandler struct {
	mu   sync.Mutex
	reqs []command.Request
}

func (h *echoHandler) Handle(_ context.Context, req command.Request) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reqs = append(h.reqs, req)
	if req.Text == "/boom" {
		panic("boom")
	}
	return []string{"got " + req.Text}
}

type sent struct {
	chatID int64
	text   string
}

type fakeReplier struct {
	mu   sync.Mutex
	msgs []sent
}

func (r *fakeReplier) SendText(_ context.Context, chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{chatID, text})
	return nil
}

func (r *fakeReplier) snapshot() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.msgs...)
}

func TestPollerDispatchesCommands(t *testing.T) {
	var calls atomic.Int32
	offsets := make(chan string, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/getUpdates", r.URL.Path)
		offsets <- r.URL.Query().Get("offset")
		switch calls.Add(1) {
		case 1:
			_, _ = w.Write([]byte(`{"ok":true,"result":[
				{"update_id":10,"message":{"message_id":1,"text":"/start","from":{"id":7,"first_name":"Ada"},"chat":{"id":70}}},
				{"update_id":11,"message":{"message_id":2,"text":"hello","from":{"id":7},"chat":{"id":70}}},
				{"update_id":12,"message":{"message_id":3,"text":"/boom","from":{"id":8},"chat":{"id":80}}},
				{"update_id":13,"message":{"message_id":4,"text":"/monitor_risk BTC 1 5","from":{"id":9},"chat":{"id":90}}}]}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
		}
	}))
	defer srv.Close()

	h := &echoHandler{}
	rep := &fakeReplier{}
	p := NewPoller(Config{APIBase: srv.URL, Token: "TOKEN", PollTimeout: 0, ErrorBackoff: 10 * time.Millisecond},
		h, rep, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, "", <-offsets)
	assert.Equal(t, "14", <-offsets)

	assert.Equal(t, []sent{
		{70, "got /start"},
		{90, "got /monitor_risk BTC 1 5"},
	}, rep.snapshot())

	require.Len(t, h.reqs, 3)
	assert.Equal(t, command.Request{UserID: 7, FirstName: "Ada", Text: "/start"}, h.reqs[0])
}

func TestPollerBacksOffOnError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
	}))
	defer srv.Close()

	p := NewPoller(Config{APIBase: srv.URL, Token: "T", ErrorBackoff: 10 * time.Millisecond},
		&echoHandler{}, &fakeReplier{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))
	assert.Nil(t, splitMessage("", 10))

	lines := strings.Repeat("abcd\n", 5) // 25 bytes
	chunks := splitMessage(lines, 12)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 12)
	}
	assert.Equal(t, strings.ReplaceAll(lines, "\n", ""), strings.ReplaceAll(strings.Join(chunks, ""), "\n", ""))

	// No newline: cut on a rune boundary.
	chunks = splitMessage(strings.Repeat("é", 5), 3) // 10 bytes
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 3)
		assert.Equal(t, "é", c)
	}
}
