// Package telegram runs the bot's getUpdates long-poll loop and routes chat
// commands to the command dispatcher.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/command"
)

// maxMessageLen is the Bot API limit for one text message.
const maxMessageLen = 4096

// Handler executes one command and returns the replies.
type Handler interface {
	Handle(ctx context.Context, req command.Request) []string
}

// Replier sends a text message to a chat.
type Replier interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Update is the subset of a Bot API update the poller reads.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an incoming chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
}

// User is the message sender.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Chat is the conversation a message belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type updatesResponse struct {
	OK          bool     `json:"ok"`
	Description string   `json:"description"`
	Result      []Update `json:"result"`
}

// Config holds the poller settings.
type Config struct {
	APIBase      string
	Token        string
	PollTimeout  int // seconds
	ErrorBackoff time.Duration
}

// Poller long-polls getUpdates and dispatches every command message.
type Poller struct {
	cfg        Config
	handler    Handler
	replier    Replier
	httpClient *http.Client
	logger     *slog.Logger
	offset     int64
}

// NewPoller creates a Poller.
func NewPoller(cfg Config, handler Handler, replier Replier, logger *slog.Logger) *Poller {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.telegram.org"
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.PollTimeout < 0 {
		cfg.PollTimeout = 0
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	return &Poller{
		cfg:     cfg,
		handler: handler,
		replier: replier,
		// Leave headroom over the server-side long-poll timeout.
		httpClient: &http.Client{Timeout: time.Duration(cfg.PollTimeout)*time.Second + 10*time.Second},
		logger:     logger.With(slog.String("component", "telegram")),
	}
}

// Run polls until ctx is cancelled. Transport and API errors are logged and
// retried after the configured backoff.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "telegram poller started")
	for {
		updates, err := p.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.InfoContext(ctx, "telegram poller stopped")
				return ctx.Err()
			}
			p.logger.WarnContext(ctx, "getUpdates failed",
				slog.String("error", err.Error()),
				slog.Duration("backoff", p.cfg.ErrorBackoff),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.cfg.ErrorBackoff):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
			p.dispatch(ctx, u)
		}
	}
}

func (p *Poller) poll(ctx context.Context) ([]Update, error) {
	params := url.Values{}
	params.Set("timeout", strconv.Itoa(p.cfg.PollTimeout))
	params.Set("allowed_updates", `["message"]`)
	if p.offset > 0 {
		params.Set("offset", strconv.FormatInt(p.offset, 10))
	}
	reqURL := fmt.Sprintf("%s/bot%s/getUpdates?%s", p.cfg.APIBase, p.cfg.Token, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: get updates: %s", strings.ReplaceAll(err.Error(), p.cfg.Token, "<token>"))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("telegram: read updates: %w", err)
	}
	var ur updatesResponse
	if err := json.Unmarshal(body, &ur); err != nil {
		return nil, fmt.Errorf("telegram: decode updates (status %d): %w", resp.StatusCode, err)
	}
	if !ur.OK {
		return nil, fmt.Errorf("telegram: get updates: status %d: %s", resp.StatusCode, ur.Description)
	}
	return ur.Result, nil
}

// dispatch handles one update. A panic in the handler is contained so the
// loop keeps serving other chats.
func (p *Poller) dispatch(ctx context.Context, u Update) {
	m := u.Message
	if m == nil || m.From == nil || !strings.HasPrefix(strings.TrimSpace(m.Text), "/") {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "command handler panicked",
				slog.Int64("update_id", u.UpdateID),
				slog.Any("panic", r),
			)
		}
	}()

	replies := p.handler.Handle(ctx, command.Request{
		UserID:    m.From.ID,
		FirstName: m.From.FirstName,
		Text:      m.Text,
	})
	for _, text := range replies {
		for _, chunk := range splitMessage(text, maxMessageLen) {
			if err := p.replier.SendText(ctx, m.Chat.ID, chunk); err != nil {
				p.logger.WarnContext(ctx, "reply failed",
					slog.Int64("chat_id", m.Chat.ID),
					slog.String("error", err.Error()),
				)
				return
			}
		}
	}
}

// splitMessage cuts text into chunks of at most limit bytes, preferring line
// boundaries and never splitting a UTF-8 sequence.
func splitMessage(text string, limit int) []string {
	var out []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8RuneStart(text[cut]) {
				cut--
			}
		}
		out = append(out, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
