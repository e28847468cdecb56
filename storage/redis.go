package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig configures the optional Redis-backed storage backend,
// grounded in the teacher's RedisTaskStoreConfig
// (orchestration/redis_task_store.go).
type RedisConfig struct {
	// KeyPrefix namespaces every key this backend writes.
	KeyPrefix string
	// TTL is how long stored values survive; zero means no expiry.
	TTL time.Duration
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{KeyPrefix: "flowengine:store", TTL: 24 * time.Hour}
}

// Redis implements the additional "redis" StoreData backend (SPEC_FULL.md
// §4.2 DOMAIN note) for deployments that configure a Redis client for
// audit/rate-limit as well.
type Redis struct {
	client *redis.Client
	cfg    RedisConfig
}

// NewRedis wraps an already-connected client.
func NewRedis(client *redis.Client, cfg RedisConfig) *Redis {
	if cfg.KeyPrefix == "" {
		cfg = DefaultRedisConfig()
	}
	return &Redis{client: client, cfg: cfg}
}

func (r *Redis) key(k string) string {
	return fmt.Sprintf("%s:%s", r.cfg.KeyPrefix, k)
}

// Write persists value as JSON under key.
func (r *Redis) Write(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for key %q: %w", key, err)
	}
	return r.client.Set(ctx, r.key(key), data, r.cfg.TTL).Err()
}

// Read loads the JSON value stored under key.
func (r *Redis) Read(ctx context.Context, key string) (any, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal stored value for key %q: %w", key, err)
	}
	return v, nil
}

// WithRedis extends Default with a fourth "redis" backend, keeping the
// existing localStorage/sessionStorage/file behavior unchanged.
type WithRedis struct {
	*Default
	redis *Redis
}

// NewWithRedis wraps an existing Default storage with a Redis backend.
func NewWithRedis(base *Default, redisBackend *Redis) *WithRedis {
	return &WithRedis{Default: base, redis: redisBackend}
}

func (w *WithRedis) Store(ctx context.Context, backend Backend, key string, value any) error {
	if backend == "redis" {
		return w.redis.Write(ctx, key, value)
	}
	return w.Default.Store(ctx, backend, key, value)
}
