package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionCache keeps a short-lived redis record of live sessions keyed
// by the access token's jti claim, so the auth middleware can confirm
// session liveness without hitting Postgres on every request. Entries
// are deleted on revocation; a miss falls back to the session registry.
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionCache(client *redis.Client, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SessionCache{client: client, ttl: ttl}
}

func sessionKey(tokenID string) string {
	return "sess:" + tokenID
}

// Put records a live session. The entry must never outlive the access
// token, so the TTL is capped at the configured access token lifetime.
func (c *SessionCache) Put(ctx context.Context, tokenID string, userID string) error {
	if err := c.client.Set(ctx, sessionKey(tokenID), userID, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache session: %w", err)
	}
	return nil
}

// Get returns the owning user id and whether the session is cached.
func (c *SessionCache) Get(ctx context.Context, tokenID string) (string, bool, error) {
	userID, err := c.client.Get(ctx, sessionKey(tokenID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read session cache: %w", err)
	}
	return userID, true, nil
}

// Invalidate removes cached entries for the given token ids. Called on
// logout and bulk revocation so a revoked session stops verifying at
// once instead of when the cache entry lapses.
func (c *SessionCache) Invalidate(ctx context.Context, tokenIDs ...string) error {
	if len(tokenIDs) == 0 {
		return nil
	}

	keys := make([]string, len(tokenIDs))
	for i, id := range tokenIDs {
		keys[i] = sessionKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate session cache: %w", err)
	}
	return nil
}
