package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"archie-core-session-layer/internal/domain"
	"archie-core-session-layer/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	sessionKeyPrefix = "session_token"
	shopKeyPrefix    = "shop_token"
)

// RedisTokenCache implements ports.TokenCache on Redis. Every write sets
// both the session-keyed and the shop-keyed entry with the configured TTL;
// the shop key is last-writer-wins. Entries never outlive their TTL, so a
// stale read can only ever return a previously valid token.
type RedisTokenCache struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRedisTokenCache creates a new Redis-backed token cache
func NewRedisTokenCache(client *redis.Client, ttl, timeout time.Duration, logger zerolog.Logger) ports.TokenCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	return &RedisTokenCache{
		client:  client,
		ttl:     ttl,
		timeout: timeout,
		logger:  logger,
	}
}

// GetBySession looks up the token under the (shop, sessionID) key
func (c *RedisTokenCache) GetBySession(ctx context.Context, shop, sessionID string) (string, error) {
	return c.get(ctx, sessionKey(shop, sessionID))
}

// GetByShop looks up the token under the shop-only fallback key
func (c *RedisTokenCache) GetByShop(ctx context.Context, shop string) (string, error) {
	return c.get(ctx, shopKey(shop))
}

func (c *RedisTokenCache) get(ctx context.Context, key string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, err := c.client.Get(cctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	return token, nil
}

// Put writes the token under both keys with the configured TTL
func (c *RedisTokenCache) Put(ctx context.Context, shop, sessionID, token string) error {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pipe := c.client.Pipeline()
	pipe.Set(cctx, sessionKey(shop, sessionID), token, c.ttl)
	pipe.Set(cctx, shopKey(shop), token, c.ttl)
	if _, err := pipe.Exec(cctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	return nil
}

// DeleteSession removes the (shop, sessionID) key
func (c *RedisTokenCache) DeleteSession(ctx context.Context, shop, sessionID string) error {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Del(cctx, sessionKey(shop, sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	return nil
}

// DeleteShopKey removes the shop-only fallback key
func (c *RedisTokenCache) DeleteShopKey(ctx context.Context, shop string) error {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Del(cctx, shopKey(shop)).Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	return nil
}

// Ping reports whether Redis is reachable
func (c *RedisTokenCache) Ping(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Ping(cctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	return nil
}

func sessionKey(shop, sessionID string) string {
	return fmt.Sprintf("%s:%s:%s", sessionKeyPrefix, shop, sessionID)
}

func shopKey(shop string) string {
	return fmt.Sprintf("%s:%s", shopKeyPrefix, shop)
}
