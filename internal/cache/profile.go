package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sheetsmith/sheetsmith/internal/model"
)

const (
	profileCachePrefix = "profile:"
	defaultProfileTTL  = 60 * time.Second
)

// GetProfile returns a cached profile snapshot, or ErrCacheMiss.
func (c *Cache) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	data, err := c.client.Get(ctx, profileCachePrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	var p model.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, ErrCacheMiss
	}
	return &p, nil
}

// SetProfile stores a snapshot. Entitlement writes must call
// InvalidateProfile afterwards; the TTL only bounds staleness if they fail.
func (c *Cache) SetProfile(ctx context.Context, p *model.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return c.client.Set(ctx, profileCachePrefix+p.ID, data, c.profileTTL).Err()
}

// InvalidateProfile drops a snapshot.
func (c *Cache) InvalidateProfile(ctx context.Context, id string) error {
	return c.client.Del(ctx, profileCachePrefix+id).Err()
}
