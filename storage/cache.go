package storage

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"devboard/domain"
)

// Cache keeps the latest activity snapshot per user in redis so a freshly
// connected stream can be primed without hitting the table store. All
// operations are best-effort; a cache failure never fails the caller.
type Cache struct {
	redis *redis.Client
}

// NewCache creates a snapshot cache over the provided redis client.
func NewCache(client *redis.Client) *Cache {
	return &Cache{redis: client}
}

func activityCacheKey(userID string) string {
	return "activity:" + userID
}

// StoreActivity caches a user's latest snapshot.
func (c *Cache) StoreActivity(ctx context.Context, userID string, snap domain.ActivitySnapshot) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, activityCacheKey(userID), data, 0).Err()
}

// LoadActivity returns the cached snapshot for a user, if one exists.
func (c *Cache) LoadActivity(ctx context.Context, userID string) (*domain.ActivitySnapshot, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, activityCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// Drop whatever is there so the next write starts clean.
			_ = c.redis.Del(ctx, activityCacheKey(userID)).Err()
		}
		return nil, false
	}
	var snap domain.ActivitySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		_ = c.redis.Del(ctx, activityCacheKey(userID)).Err()
		return nil, false
	}
	return &snap, true
}
