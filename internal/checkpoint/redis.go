package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/ajitpratap0/searchsync/pkg/config"
	"github.com/ajitpratap0/searchsync/pkg/models"
	"github.com/ajitpratap0/searchsync/pkg/syncerrors"
)

// RedisStore keeps watermarks in Redis, one key per entity type.
// Writes rely on Redis persistence (AOF/RDB) for crash durability.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore connects a Redis-backed store. The connection is lazy;
// use Ping to verify reachability at startup.
func NewRedisStore(cfg config.CheckpointConfig) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
		namespace: cfg.Namespace,
	}
}

func (s *RedisStore) key(entity models.EntityType) string {
	return fmt.Sprintf("%s:watermark:%s", s.namespace, entity)
}

// Get returns the committed watermark for entity, if any.
func (s *RedisStore) Get(ctx context.Context, entity models.EntityType) (models.Watermark, bool, error) {
	raw, err := s.client.Get(ctx, s.key(entity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Watermark{}, false, nil
	}
	if err != nil {
		return models.Watermark{}, false, syncerrors.Wrap(err, syncerrors.ErrorTypeUnavailable, "checkpoint store unreachable").
			WithDetail("entity", string(entity))
	}

	var wm models.Watermark
	if err := json.Unmarshal(raw, &wm); err != nil {
		return models.Watermark{}, false, syncerrors.Wrap(err, syncerrors.ErrorTypeCheckpoint, "corrupt watermark record").
			WithDetail("entity", string(entity))
	}
	return wm, true, nil
}

// Set durably records the watermark for entity.
func (s *RedisStore) Set(ctx context.Context, entity models.EntityType, wm models.Watermark) error {
	raw, err := json.Marshal(wm)
	if err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeCheckpoint, "failed to encode watermark")
	}

	if err := s.client.Set(ctx, s.key(entity), raw, 0).Err(); err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeUnavailable, "failed to persist watermark").
			WithDetail("entity", string(entity))
	}
	return nil
}

// Reset removes the entity's watermark.
func (s *RedisStore) Reset(ctx context.Context, entity models.EntityType) error {
	if err := s.client.Del(ctx, s.key(entity)).Err(); err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeUnavailable, "failed to reset watermark").
			WithDetail("entity", string(entity))
	}
	return nil
}

// Ping verifies the Redis backend is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeUnavailable, "checkpoint store unreachable")
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
