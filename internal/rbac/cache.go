package rbac

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// PrincipalCache memoizes resolved principals between requests. Entries must
// be invalidated whenever the user's role, permissions or entity assignment
// change; stale grants are worse than a cache miss.
type PrincipalCache interface {
	Get(ctx context.Context, userID string) (Principal, bool)
	Set(ctx context.Context, principal Principal)
	Invalidate(ctx context.Context, userIDs ...string)
}

const (
	principalKeyPrefix  = "ads360:principal:"
	defaultPrincipalTTL = 5 * time.Minute
)

// RedisPrincipalCache stores principals as JSON with a TTL. A nil client
// disables caching: Get always misses and writes are no-ops.
type RedisPrincipalCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPrincipalCache wraps the given client. client may be nil.
func NewRedisPrincipalCache(client *redis.Client, ttl time.Duration) *RedisPrincipalCache {
	if ttl <= 0 {
		ttl = defaultPrincipalTTL
	}
	return &RedisPrincipalCache{client: client, ttl: ttl}
}

func (c *RedisPrincipalCache) Get(ctx context.Context, userID string) (Principal, bool) {
	if c == nil || c.client == nil || userID == "" {
		return Principal{}, false
	}
	data, err := c.client.Get(ctx, principalKeyPrefix+userID).Bytes()
	if err != nil {
		return Principal{}, false
	}
	var principal Principal
	if err := json.Unmarshal(data, &principal); err != nil {
		c.Invalidate(ctx, userID)
		return Principal{}, false
	}
	return principal, true
}

func (c *RedisPrincipalCache) Set(ctx context.Context, principal Principal) {
	if c == nil || c.client == nil || principal.UserID == "" {
		return
	}
	data, err := json.Marshal(principal)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, principalKeyPrefix+principal.UserID, data, c.ttl).Err()
}

func (c *RedisPrincipalCache) Invalidate(ctx context.Context, userIDs ...string) {
	if c == nil || c.client == nil || len(userIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			keys = append(keys, principalKeyPrefix+id)
		}
	}
	if len(keys) > 0 {
		_ = c.client.Del(ctx, keys...).Err()
	}
}
