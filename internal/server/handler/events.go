package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// EventStream reads the recent event history kept in Redis streams.
type EventStream interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
	StreamTail(ctx context.Context, stream string, n int) ([]domain.StreamMessage, error)
}

// EventHandler serves recent risk and position events.
type EventHandler struct {
	stream EventStream
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(stream EventStream, logger *slog.Logger) *EventHandler {
	return &EventHandler{stream: stream, logger: logger}
}

type streamEvent struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// ListEvents returns the newest events of a channel, oldest first. With
// after=<id> it returns the events following that id instead, for polling.
// GET /api/events?channel=risk_events&limit=50&after=
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	channel := q.Get("channel")
	if channel == "" {
		channel = domain.ChannelRiskEvents
	}
	if channel != domain.ChannelRiskEvents && channel != domain.ChannelPositions {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown channel %q", channel))
		return
	}
	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = min(n, 500)
	}

	var (
		msgs []domain.StreamMessage
		err  error
	)
	if after := q.Get("after"); after != "" {
		msgs, err = h.stream.StreamRead(r.Context(), channel, after, limit)
	} else {
		msgs, err = h.stream.StreamTail(r.Context(), channel, limit)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, "list events", err)
		return
	}

	out := make([]streamEvent, 0, len(msgs))
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		out = append(out, streamEvent{ID: m.ID, Event: m.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{"channel": channel, "events": out})
}
