package storeinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-delivery/internal/models"
)

const cacheKey = "store_info"

// RedisCache keeps a short-lived copy of store_info. Every client view reads
// it on each refresh, so the row would otherwise be hit once per poll.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: client, TTL: ttl}
}

// Get returns nil without error on a miss.
func (c *RedisCache) Get(ctx context.Context) (*models.StoreInfo, error) {
	raw, err := c.Client.Get(ctx, cacheKey).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get store info from Redis: %w", err)
	}

	var info models.StoreInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal store info: %w", err)
	}
	return &info, nil
}

func (c *RedisCache) Set(ctx context.Context, info models.StoreInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal store info: %w", err)
	}
	if err := c.Client.Set(ctx, cacheKey, raw, c.TTL).Err(); err != nil {
		return fmt.Errorf("failed to store store info in Redis: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	return c.Client.Del(ctx, cacheKey).Err()
}
