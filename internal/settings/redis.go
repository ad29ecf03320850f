package settings

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	infralogger "github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
)

// Default Redis names.
const (
	DefaultHashKey = "veritas:settings"
	DefaultChannel = "veritas:settings:changed"

	fieldAPIKey      = "api_key"
	fieldAutoAnalyze = "auto_analyze"
)

// RedisStore keeps settings in a Redis hash and announces every save on a
// Pub/Sub channel so all service instances rebuild their client.
type RedisStore struct {
	client  *redis.Client
	hashKey string
	channel string
	logger  infralogger.Logger
}

// NewRedisStore creates a store. Empty names use the defaults.
func NewRedisStore(client *redis.Client, hashKey, channel string, logger infralogger.Logger) *RedisStore {
	if hashKey == "" {
		hashKey = DefaultHashKey
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisStore{client: client, hashKey: hashKey, channel: channel, logger: logger}
}

// Load implements Store. Missing fields take their defaults.
func (s *RedisStore) Load(ctx context.Context) (Settings, error) {
	fields, err := s.client.HGetAll(ctx, s.hashKey).Result()
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}

	out := Defaults()
	out.APIKey = fields[fieldAPIKey]
	if raw, ok := fields[fieldAutoAnalyze]; ok {
		if parsed, parseErr := strconv.ParseBool(raw); parseErr == nil {
			out.AutoAnalyze = parsed
		}
	}
	return out, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, next Settings) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.hashKey,
			fieldAPIKey, next.APIKey,
			fieldAutoAnalyze, strconv.FormatBool(next.AutoAnalyze),
		)
		pipe.Publish(ctx, s.channel, "changed")
		return nil
	})
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Watch implements Store. It returns once the subscription is confirmed.
func (s *RedisStore) Watch(ctx context.Context) (<-chan Settings, error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	out := make(chan Settings, 1)
	go s.forward(ctx, pubsub, out)
	return out, nil
}

func (s *RedisStore) forward(ctx context.Context, pubsub *redis.PubSub, out chan Settings) {
	defer close(out)
	defer func() { _ = pubsub.Close() }()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-messages:
			if !ok {
				return
			}
			current, err := s.Load(ctx)
			if err != nil {
				s.logger.Warn("Settings changed but reload failed", infralogger.Error(err))
				continue
			}
			deliverLatest(out, current)
		}
	}
}
