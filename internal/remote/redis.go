package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Martyparty1988/Martyai/internal/config"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

// RedisSubmitter appends each change to a Redis stream.
type RedisSubmitter struct {
	client *redis.Client
	stream string
}

// NewRedisSubmitter creates a stream submitter from a redis:// URL.
func NewRedisSubmitter(cfg config.RemoteConfig) (*RedisSubmitter, error) {
	if cfg.RedisURL == "" {
		return nil, errors.New("remote redis_url is required for the redis backend")
	}
	if cfg.Stream == "" {
		return nil, errors.New("remote stream is required for the redis backend")
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &RedisSubmitter{client: redis.NewClient(opts), stream: cfg.Stream}, nil
}

func (s *RedisSubmitter) Submit(ctx context.Context, entry models.QueueEntry) error {
	body, err := encode(entry)
	if err != nil {
		return err
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"key":    key(entry),
			"action": entry.Action,
			"change": string(body),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("appending change to stream: %w", err)
	}
	return nil
}

func (s *RedisSubmitter) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}

func (s *RedisSubmitter) Close() error {
	return s.client.Close()
}
