// Package redis wraps go-redis for the optional event mirror. The core
// engine never touches redis; the server publishes each run event to a
// per-run channel so external dashboards can follow along.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/strandworks/strand/common/config"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Client wraps redis.Client with the operations the event mirror needs
type Client struct {
	redis  *redis.Client
	prefix string
	logger Logger
}

// Connect dials redis per config and verifies the connection.
func Connect(ctx context.Context, cfg config.RedisConfig, logger Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return &Client{
		redis:  rdb,
		prefix: cfg.ChannelPrefix,
		logger: logger,
	}, nil
}

// NewClient wraps an existing redis.Client; tests use this with miniredis
// style fakes.
func NewClient(redisClient *redis.Client, prefix string, logger Logger) *Client {
	return &Client{
		redis:  redisClient,
		prefix: prefix,
		logger: logger,
	}
}

// PublishEvent publishes an encoded event to the run's channel. Mirror
// failures are logged, never fatal.
func (c *Client) PublishEvent(ctx context.Context, runID string, payload []byte) {
	channel := fmt.Sprintf("%s:%s", c.prefix, runID)
	if err := c.redis.Publish(ctx, channel, payload).Err(); err != nil {
		c.logger.Warn("redis PUBLISH failed", "channel", channel, "error", err)
		return
	}
	c.logger.Debug("redis PUBLISH", "channel", channel, "bytes", len(payload))
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.redis.Close()
}
