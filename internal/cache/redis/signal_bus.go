package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// streamMaxLen caps every stream via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// SignalBus implements domain.SignalBus. Pub/Sub carries live risk and
// position events to websocket clients; streams keep a bounded durable
// history of the same events for the HTTP API. Channel and stream names are
// namespaced with the package key prefix.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish sends payload to a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, key(channel), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe subscribes to channel (glob patterns allowed) and returns a
// channel of payloads that is closed when ctx is cancelled.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	name := key(channel)
	var pubsub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		pubsub = sb.rdb.PSubscribe(ctx, name)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, name)
	}

	// Wait for the subscription confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// StreamAppend appends payload to stream, trimming it to roughly
// streamMaxLen entries.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: key(stream),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead reads up to count entries after lastID ("0" reads from the
// start). It does not block and returns nil when nothing is available.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	start := "-"
	fetch := int64(count)
	if lastID != "" && lastID != "0" && lastID != "0-0" {
		// XRANGE is inclusive; fetch one extra and drop lastID itself.
		start = lastID
		fetch++
	}

	entries, err := sb.rdb.XRangeN(ctx, key(stream), start, "+", fetch).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	messages := make([]domain.StreamMessage, 0, len(entries))
	for _, e := range entries {
		if e.ID == lastID || len(messages) == count {
			continue
		}
		if data, ok := payloadBytes(e.Values["payload"]); ok {
			messages = append(messages, domain.StreamMessage{ID: e.ID, Payload: data})
		}
	}
	return messages, nil
}

// StreamTail returns the newest n entries of stream, oldest first.
func (sb *SignalBus) StreamTail(ctx context.Context, stream string, n int) ([]domain.StreamMessage, error) {
	entries, err := sb.rdb.XRevRangeN(ctx, key(stream), "+", "-", int64(n)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: stream tail %s: %w", stream, err)
	}

	messages := make([]domain.StreamMessage, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if data, ok := payloadBytes(entries[i].Values["payload"]); ok {
			messages = append(messages, domain.StreamMessage{ID: entries[i].ID, Payload: data})
		}
	}
	return messages, nil
}

func payloadBytes(v any) ([]byte, bool) {
	switch p := v.(type) {
	case string:
		return []byte(p), true
	case []byte:
		return p, true
	default:
		return nil, false
	}
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
