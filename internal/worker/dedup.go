package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers recently delivered object keys so a redelivered
// notification does not launch a second transcoding job.
type Deduper interface {
	// Seen marks the key as delivered and reports whether it had
	// already been marked within the TTL window.
	Seen(ctx context.Context, key string) (bool, error)
}

const dedupKeyPrefix = "upload:seen:"

// RedisDeduper implements Deduper on a TTL'd Redis SETNX guard.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper connects to Redis and verifies connectivity.
func NewRedisDeduper(ctx context.Context, addr string, ttl time.Duration) (*RedisDeduper, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisDeduper{client: client, ttl: ttl}, nil
}

// Seen implements Deduper.
func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	set, err := d.client.SetNX(ctx, dedupKeyPrefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !set, nil
}

// Close releases the Redis connection.
func (d *RedisDeduper) Close() error {
	return d.client.Close()
}
