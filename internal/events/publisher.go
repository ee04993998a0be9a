// Package events fans risk events out to Redis (live pub/sub plus a bounded
// stream) and Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

var (
	_ domain.EventPublisher = (*RedisPublisher)(nil)
	_ domain.EventPublisher = (*KafkaPublisher)(nil)
	_ domain.EventPublisher = Multi(nil)
)

// channelFor routes position mutations to the positions channel and every
// engine decision to the risk events channel.
func channelFor(t domain.RiskEventType) string {
	if t == domain.EventPositionChanged {
		return domain.ChannelPositions
	}
	return domain.ChannelRiskEvents
}

// RedisPublisher publishes events on the signal bus and appends them to a
// stream of the same name so the HTTP API can serve recent history.
type RedisPublisher struct {
	bus domain.SignalBus
}

// NewRedisPublisher creates a RedisPublisher.
func NewRedisPublisher(bus domain.SignalBus) *RedisPublisher {
	return &RedisPublisher{bus: bus}
}

// PublishRiskEvent implements domain.EventPublisher.
func (p *RedisPublisher) PublishRiskEvent(ctx context.Context, evt domain.RiskEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", evt.Type, err)
	}
	ch := channelFor(evt.Type)
	if err := p.bus.Publish(ctx, ch, payload); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	if err := p.bus.StreamAppend(ctx, ch, payload); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	return nil
}

// Multi publishes to every publisher and joins their errors.
type Multi []domain.EventPublisher

// PublishRiskEvent implements domain.EventPublisher.
func (m Multi) PublishRiskEvent(ctx context.Context, evt domain.RiskEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishRiskEvent(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
