package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLoader fetches the config blob from a Redis key. Fleets that
// distribute the blob through Redis instead of a node-local file point
// the watcher here; the poll/swap semantics are identical.
type RedisLoader struct {
	client *redis.Client
	key    string
}

// NewRedisLoader wraps an existing client. key is the string key holding
// the raw blob.
func NewRedisLoader(client *redis.Client, key string) *RedisLoader {
	if client == nil {
		panic("watch: redis client cannot be nil")
	}
	if key == "" {
		panic("watch: redis key cannot be empty")
	}
	return &RedisLoader{client: client, key: key}
}

func (r *RedisLoader) Load(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("config key %q not present", r.key)
		}
		return nil, fmt.Errorf("fetch config key %q: %w", r.key, err)
	}
	return data, nil
}

func (r *RedisLoader) Source() string { return "redis" }

// NewRedisClient initializes the Redis connection for a RedisLoader with
// conservative timeouts and verifies connectivity before returning.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	opts := &redis.Options{
		Addr: addr,
		// Timeouts prevent a slow Redis from stalling reload cycles
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
		MinIdleConns: 1,
	}

	client := redis.NewClient(opts)

	// Fail Fast: verify the connection immediately
	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(initCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
