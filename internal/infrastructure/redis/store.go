package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisStore(client *redis.Client, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		s.logger.Error("Failed to get from redis", "key", key, "error", err)
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	return val, true, nil
}

func (s *RedisStore) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.logger.Error("Failed to set in redis", "key", key, "ttl", ttl, "error", err)
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		s.logger.Error("Failed to increment in redis", "key", key, "error", err)
		return 0, fmt.Errorf("redis incr failed: %w", err)
	}

	return n, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Error("Failed to ping Redis", "error", err)
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
