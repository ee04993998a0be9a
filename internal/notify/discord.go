package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Discord embed limits.
const (
	discordTitleLimit = 256
	discordDescLimit  = 4096
)

// Embed colours per risk event.
var discordColors = map[string]int{
	string(domain.EventRiskAlert):        0xE67E22,
	string(domain.EventHedgeExecuted):    0x2ECC71,
	string(domain.EventHedgeFailed):      0xE74C3C,
	string(domain.EventInvalidThreshold): 0xF1C40F,
	string(domain.EventNoRisk):           0x95A5A6,
}

const discordDefaultColor = 0x3498DB

// DiscordSender mirrors risk events to an operator Discord channel through a
// webhook, one embed per message.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

type discordEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

func (d *DiscordSender) payload(msg Message) discordPayload {
	color, ok := discordColors[msg.Event]
	if !ok {
		color = discordDefaultColor
	}
	embed := discordEmbed{
		Title:       truncateRunes(msg.Title, discordTitleLimit),
		Description: truncateRunes(msg.Body, discordDescLimit),
		Color:       color,
		Timestamp:   d.now().UTC().Format(time.RFC3339),
	}
	if msg.Event != "" {
		embed.Footer = &discordFooter{Text: msg.Event}
	}
	return discordPayload{Username: "hedgebot", Embeds: []discordEmbed{embed}}
}

// Send posts msg as an embed. A 429 from Discord wraps domain.ErrRateLimited.
func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(d.payload(msg))
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("discord: retry after %ss: %w", resp.Header.Get("Retry-After"), domain.ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

func (d *DiscordSender) Name() string {
	return "discord"
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
