// Package redis opens the connection used by the replenish event stream.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/THIS-Institute/thiscovery-surveys/internal/config"
)

// ErrEmptyAddress is returned when Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// connectionTimeout is the timeout for verifying Redis connection.
const connectionTimeout = 5 * time.Second

// NewClient creates a Redis client and verifies it with PING.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// Checker reports Redis reachability for health checks.
type Checker struct {
	client *redis.Client
}

// NewChecker wraps client for health checks.
func NewChecker(client *redis.Client) *Checker {
	return &Checker{client: client}
}

// Ping sends PING to the server.
func (c *Checker) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
