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
	authCachePrefix = "auth:ctx:"
	// authUserPrefix indexes a user's cached contexts so they can be
	// dropped together on revocation or account deletion.
	authUserPrefix = "auth:user:"
	authCacheTTL   = 5 * time.Minute
)

type cachedAuthContext struct {
	KeyID     string   `json:"key_id"`
	KeyPrefix string   `json:"key_prefix"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes"`
}

// GetAuthContext returns the cached principal for a key fingerprint, or
// ErrCacheMiss.
func (c *Cache) GetAuthContext(ctx context.Context, fingerprint string) (*model.AuthContext, error) {
	data, err := c.client.Get(ctx, authCachePrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get auth context: %w", err)
	}

	var cached cachedAuthContext
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, ErrCacheMiss
	}

	return &model.AuthContext{
		KeyID:     cached.KeyID,
		KeyPrefix: cached.KeyPrefix,
		UserID:    cached.UserID,
		Scopes:    cached.Scopes,
	}, nil
}

// SetAuthContext caches a verified principal under the key fingerprint.
func (c *Cache) SetAuthContext(ctx context.Context, fingerprint string, a *model.AuthContext) error {
	data, err := json.Marshal(cachedAuthContext{
		KeyID:     a.KeyID,
		KeyPrefix: a.KeyPrefix,
		UserID:    a.UserID,
		Scopes:    a.Scopes,
	})
	if err != nil {
		return fmt.Errorf("marshal auth context: %w", err)
	}

	userKey := authUserPrefix + a.UserID
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, authCachePrefix+fingerprint, data, authCacheTTL)
		pipe.SAdd(ctx, userKey, fingerprint)
		pipe.Expire(ctx, userKey, authCacheTTL)
		return nil
	})
	return err
}

// InvalidateUserAuthContexts drops every cached principal belonging to
// userID. Key revocation and account deletion call it so a revoked key stops
// working immediately.
func (c *Cache) InvalidateUserAuthContexts(ctx context.Context, userID string) error {
	userKey := authUserPrefix + userID

	fingerprints, err := c.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("list auth contexts: %w", err)
	}

	keys := make([]string, 0, len(fingerprints)+1)
	for _, fp := range fingerprints {
		keys = append(keys, authCachePrefix+fp)
	}
	keys = append(keys, userKey)

	return c.client.Del(ctx, keys...).Err()
}
