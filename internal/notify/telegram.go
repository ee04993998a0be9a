package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TelegramSender delivers messages through the Telegram Bot API sendMessage
// method. Each message goes to its own ChatID; fallbackChat is used when the
// message has none (operator mirror).
type TelegramSender struct {
	apiBase      string
	token        string
	fallbackChat int64
	client       *http.Client
}

// NewTelegramSender creates a TelegramSender. apiBase defaults to
// https://api.telegram.org.
func NewTelegramSender(apiBase, token string, fallbackChat int64) *TelegramSender {
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	return &TelegramSender{
		apiBase:      strings.TrimRight(apiBase, "/"),
		token:        token,
		fallbackChat: fallbackChat,
		client:       &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts msg to its chat.
func (t *TelegramSender) Send(ctx context.Context, msg Message) error {
	chatID := msg.ChatID
	if chatID == 0 {
		chatID = t.fallbackChat
	}
	if chatID == 0 {
		return fmt.Errorf("telegram: no chat id")
	}
	return t.SendText(ctx, chatID, msg.Text())
}

// SendText posts plain text to chatID.
func (t *TelegramSender) SendText(ctx context.Context, chatID int64, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)

	body, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The token is part of the URL; keep it out of logs.
		return fmt.Errorf("telegram: send request: %s", strings.ReplaceAll(err.Error(), t.token, "<token>"))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

// OperatorChat returns a Sender that posts every message to the fallback
// chat regardless of its ChatID.
func (t *TelegramSender) OperatorChat() Sender {
	return operatorChat{t: t}
}

type operatorChat struct{ t *TelegramSender }

func (o operatorChat) Send(ctx context.Context, msg Message) error {
	msg.ChatID = 0
	return o.t.Send(ctx, msg)
}

func (o operatorChat) Name() string { return "telegram_operator" }
