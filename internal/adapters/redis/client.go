package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"hermes/internal/adapters/config"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// Client wraps the go-redis client with connection verification.
type Client struct {
	rdb *redis.Client
	log *logger.Logger
}

// NewClient connects to redis and verifies the connection with a ping.
func NewClient(cfg config.RedisConfig, log *logger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	log.Infow("Connected to redis", "addr", cfg.Addr(), "db", cfg.DB)

	return &Client{
		rdb: rdb,
		log: log.With("component", "redis"),
	}, nil
}

// Raw exposes the underlying go-redis client.
func (c *Client) Raw() *redis.Client {
	return c.rdb
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
