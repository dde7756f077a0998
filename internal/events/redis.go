package events

import (
	"context"
	"encoding/json"

	"github.com/lalith-99/crmhub/pkg/invalidation"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const Channel = "crmhub:invalidations"

// RedisBridge publishes through Redis and feeds received messages to the
// local hub, so each instance sees every instance's events.
type RedisBridge struct {
	client *redis.Client
	hub    *Hub
	logger *zap.Logger
}

func NewRedisBridge(client *redis.Client, hub *Hub, logger *zap.Logger) *RedisBridge {
	return &RedisBridge{client: client, hub: hub, logger: logger}
}

// Publish falls back to local delivery when Redis is unavailable.
func (b *RedisBridge) Publish(ctx context.Context, ev invalidation.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("encode event", zap.Error(err))
		return
	}
	if err := b.client.Publish(context.WithoutCancel(ctx), Channel, raw).Err(); err != nil {
		b.logger.Warn("redis publish failed, delivering locally", zap.Error(err))
		b.hub.Broadcast(ev)
	}
}

// Run relays subscribed messages to the hub until ctx ends.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, Channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.logger.Info("relaying invalidation events", zap.String("channel", Channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev invalidation.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("discarding malformed event", zap.Error(err))
				continue
			}
			b.hub.Broadcast(ev)
		}
	}
}
