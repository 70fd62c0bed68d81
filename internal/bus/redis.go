package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Odillon241/Chronodil-sub001/internal/broadcaster"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus fans room events out to every relay node subscribed to the same
// pub/sub channel. Each node then broadcasts to its own registry.
type RedisBus struct {
	logger   *zap.Logger
	client   *redis.Client
	channel  string
	registry broadcaster.Registry
}

func NewRedisBus(
	logger *zap.Logger,
	client *redis.Client,
	channel string,
	registry broadcaster.Registry,
) *RedisBus {
	return &RedisBus{
		logger:   logger,
		client:   client,
		channel:  channel,
		registry: registry,
	}
}

func Connect(ctx context.Context, url string) (*redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func (b *RedisBus) Publish(ctx context.Context, event RoomEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBus) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	b.logger.Info("subscribed to room events", zap.String("channel", b.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-messages:
			if !ok {
				return nil
			}
			b.dispatch(message.Payload)
		}
	}
}

func (b *RedisBus) dispatch(payload string) {
	var event RoomEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		b.logger.Warn("dropping malformed room event", zap.Error(err))
		return
	}

	if event.ConversationId == "" {
		b.logger.Warn("dropping room event without conversation")
		return
	}

	b.registry.Broadcast(event.ConversationId, event.Frame, event.ExcludeConnectionId)
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
