package changefeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
)

type envelope struct {
	Origin string             `json:"origin"`
	Event  models.ChangeEvent `json:"event"`
}

// RedisBridge shares change events between API instances. Local subscribers
// are served straight from the hub; events from other instances arrive over
// a redis pub/sub channel and are replayed into the same hub.
type RedisBridge struct {
	Client  *redis.Client
	Channel string
	Local   *Hub
	Logger  *logger.Logger
	origin  string
}

func NewRedisBridge(client *redis.Client, channel string, local *Hub, log *logger.Logger) *RedisBridge {
	return &RedisBridge{
		Client:  client,
		Channel: channel,
		Local:   local,
		Logger:  log,
		origin:  uuid.NewString(),
	}
}

func (b *RedisBridge) Publish(ctx context.Context, ev models.ChangeEvent) error {
	if err := b.Local.Publish(ctx, ev); err != nil {
		return err
	}

	payload, err := json.Marshal(envelope{Origin: b.origin, Event: ev})
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	if err := b.Client.Publish(ctx, b.Channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", b.Channel, err)
	}
	return nil
}

func (b *RedisBridge) Subscribe(ctx context.Context, orderID string) (<-chan models.ChangeEvent, error) {
	return b.Local.Subscribe(ctx, orderID)
}

// Run relays events published by other instances until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.Client.Subscribe(ctx, b.Channel)
	defer pubsub.Close()

	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", b.Channel, err)
	}
	b.Logger.Info("REDIS", fmt.Sprintf("Relaying change events from channel %s", b.Channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.Logger.Warn("REDIS", fmt.Sprintf("Skipping malformed change event: %v", err))
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			if err := b.Local.Publish(ctx, env.Event); err != nil {
				return err
			}
		}
	}
}
