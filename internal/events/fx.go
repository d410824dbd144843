package events

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/coinflow/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewHub),
	fx.Provide(NewPublishers),
)

// NewPublishers builds the external publisher set. Redis is optional; with no
// address configured the hub is the only consumer.
func NewPublishers(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) []Publisher {
	if cfg.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	return []Publisher{NewRedisPublisher(client, cfg.RedisChannel, log)}
}
