package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:user:"

// NewRedisClient connects to url and pings it.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// RedisCache stores one expiring key per online user.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func key(userID string) string { return keyPrefix + userID }

func (c *RedisCache) Touch(ctx context.Context, userID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key(userID), time.Now().UnixMilli(), ttl).Err()
}

func (c *RedisCache) Online(ctx context.Context, userID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ Cache = (*RedisCache)(nil)
