package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces pub/sub channels.
const DefaultChannelPrefix = "siteledger"

// RedisPublisher publishes notifications as JSON on redis channels "<prefix>:<topic>".
type RedisPublisher struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisPublisher constructs a publisher.
func NewRedisPublisher(client *redis.Client, prefix string, logger *slog.Logger) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{client: client, prefix: prefix, logger: logger}
}

// Channel returns the redis channel for topic.
func (p *RedisPublisher) Channel(topic string) string {
	return p.prefix + ":" + topic
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, n Notification) error {
	if p == nil || p.client == nil {
		return errors.New("events: redis publisher not configured")
	}
	if n.Topic == "" {
		return errors.New("events: topic required")
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", n.Event, err)
	}
	receivers, err := p.client.Publish(ctx, p.Channel(n.Topic), body).Result()
	if err != nil {
		return fmt.Errorf("events: publish %s: %w", n.Topic, err)
	}
	p.logger.Debug("notification published", slog.String("topic", n.Topic), slog.String("event", n.Event), slog.Int64("receivers", receivers))
	return nil
}

// Subscribe listens on the given topics until ctx is done, invoking fn per decoded notification.
func (p *RedisPublisher) Subscribe(ctx context.Context, fn func(Notification), topics ...string) error {
	if len(topics) == 0 {
		return errors.New("events: at least one topic required")
	}
	channels := make([]string, 0, len(topics))
	for _, t := range topics {
		channels = append(channels, p.Channel(t))
	}
	sub := p.client.Subscribe(ctx, channels...)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("events: subscribe: %w", err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				p.logger.Warn("drop malformed notification", slog.String("channel", msg.Channel), slog.Any("error", err))
				continue
			}
			fn(n)
		}
	}
}
