// Package redis builds go-redis clients from service configuration.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/veritas/infrastructure/retry"
)

// Config holds Redis connection configuration.
type Config struct {
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
}

// ErrEmptyAddress is returned when Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// connectionTimeout bounds the initial ping.
const connectionTimeout = 5 * time.Second

// NewClient creates a Redis client and verifies it with a ping.
func NewClient(cfg Config) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// Connect calls NewClient until it succeeds or the retry budget is spent.
// Redis is usually started alongside the service, so the first pings may fail.
func Connect(ctx context.Context, cfg Config, retryCfg retry.Config, log logger.Logger) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	retryCfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.Warn("Redis not reachable, retrying",
			logger.String("address", cfg.Address),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Error(err),
		)
	}

	var client *redis.Client
	err := retry.Retry(ctx, retryCfg, func() error {
		c, connErr := NewClient(cfg)
		if connErr != nil {
			return connErr
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Address, err)
	}

	return client, nil
}
