package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/medistore/pkg/config"
	"github.com/example/medistore/pkg/storage"
	"github.com/go-redis/redis/v8"
)

// RedisStore persists engine state as JSON strings under
// "<namespace>:<key>". Values never expire.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

func NewRedisStore(cfg *config.RedisConfig, namespace string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}),
		namespace: namespace,
	}
}

func (r *RedisStore) key(k string) string {
	if r.namespace == "" {
		return k
	}
	return r.namespace + ":" + k
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(key), data, expiration).Err()
}

func (r *RedisStore) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return &storage.DecodeError{Key: key, Err: err}
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	err := r.GetJSON(ctx, key, dest)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	var de *storage.DecodeError
	if errors.As(err, &de) {
		return true, de
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %q from redis: %w", key, err)
	}
	return true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value interface{}) error {
	if err := r.SetJSON(ctx, key, value, 0); err != nil {
		return fmt.Errorf("failed to write %q to redis: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
