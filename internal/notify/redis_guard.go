package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGuard is a Guard backed by redis SET NX with a TTL, for deployments
// where more than one instance runs the sweeps against the same store.
type RedisGuard struct {
	client *redis.Client
	prefix string
}

// NewRedisGuard creates a RedisGuard using the given client. The prefix is
// prepended to every key so the guard can share a redis database with other
// uses.
func NewRedisGuard(client *redis.Client, prefix string) *RedisGuard {
	if prefix == "" {
		prefix = "taskhive:dedup:"
	}
	return &RedisGuard{client: client, prefix: prefix}
}

// TrySet implements Guard. SET NX inserts atomically; a false reply means
// another sender holds the key.
func (g *RedisGuard) TrySet(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set dedup key: %w", err)
	}
	return ok, nil
}
