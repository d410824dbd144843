package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher broadcasts status events over a redis pub/sub channel so
// external workers (webhook dispatchers, chain watchers) can react.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisPublisher(client *redis.Client, channel string, log *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: channel,
		log:     log.Named("events.redis"),
	}
}

func (p *RedisPublisher) PublishStatus(ctx context.Context, event StatusEvent) error {
	if p == nil || p.client == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal status event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("events: publish to %s: %w", p.channel, err)
	}
	return nil
}
