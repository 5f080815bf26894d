package bootstrap

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/THIS-Institute/thiscovery-surveys/internal/config"
	"github.com/THIS-Institute/thiscovery-surveys/internal/events"
	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
	infraredis "github.com/THIS-Institute/thiscovery-surveys/internal/redis"
)

// SetupRedis connects to Redis when it is enabled. It returns nil, nil when
// Redis is disabled.
func SetupRedis(ctx context.Context, cfg *config.Config, log logger.Logger) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		log.Info("Redis disabled; replenish events are not published")
		return nil, nil
	}

	client, err := infraredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	log.Info("Redis connected", logger.String("redis_address", cfg.Redis.Address))
	return client, nil
}

// SetupEventPublisher creates the replenish event publisher. A nil client
// yields a nil publisher.
func SetupEventPublisher(client *redis.Client, cfg *config.Config, log logger.Logger, rec events.PublishRecorder) *events.Publisher {
	if client == nil {
		return nil
	}
	log.Info("Event publisher initialized", logger.String("stream", cfg.Events.Stream))
	return events.NewPublisher(client, cfg.Events.Stream, cfg.Events.PublishTimeout, log, rec)
}
