package invalidation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Pub/sub channel carrying the guild ID of changed rules
const RedisChannel = "automod:rules-changed"

type RedisSubscriber struct {
	Client  *redis.Client
	Channel string
	Logger  *slog.Logger
}

var _ Subscriber = (*RedisSubscriber)(nil)

func NewRedisSubscriber(client *redis.Client, logger *slog.Logger) *RedisSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSubscriber{
		Client:  client,
		Channel: RedisChannel,
		Logger:  logger.With("component", "invalidation", "transport", "redis"),
	}
}

func (s *RedisSubscriber) Run(ctx context.Context, h Handler) error {
	sub := s.Client.Subscribe(ctx, s.Channel)
	defer sub.Close()

	// wait for subscription confirmation, so connection errors surface here
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to redis channel %s: %w", s.Channel, err)
	}
	s.Logger.Info("listening for rule invalidations", "channel", s.Channel)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			guildID := strings.TrimSpace(msg.Payload)
			if guildID == "" {
				s.Logger.Warn("ignoring empty rule invalidation message")
				continue
			}
			invalidationsReceived.WithLabelValues("redis").Inc()
			h(guildID)
		}
	}
}

func PublishRedis(ctx context.Context, client *redis.Client, guildID string) error {
	return client.Publish(ctx, RedisChannel, guildID).Err()
}
