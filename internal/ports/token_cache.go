package ports

import "context"

// TokenCache defines the ephemeral token lookup tier. Entries are keyed two
// ways: by (shop, sessionID) and by shop alone (most-recently-written wins
// for the shop-only key). Entries expire on a TTL and the cache is never the
// sole record of truth.
//
// Misses are reported as domain.ErrCacheMiss; infrastructure failures are
// wrapped in domain.ErrCacheUnavailable. Callers treat both as a miss on the
// read path.
type TokenCache interface {
	// GetBySession looks up the token under the (shop, sessionID) key.
	GetBySession(ctx context.Context, shop, sessionID string) (string, error)

	// GetByShop looks up the token under the shop-only fallback key.
	GetByShop(ctx context.Context, shop string) (string, error)

	// Put writes the token under both keys with the configured TTL.
	Put(ctx context.Context, shop, sessionID, token string) error

	// DeleteSession removes the (shop, sessionID) key.
	DeleteSession(ctx context.Context, shop, sessionID string) error

	// DeleteShopKey removes the shop-only fallback key.
	DeleteShopKey(ctx context.Context, shop string) error

	// Ping reports whether the cache backend is reachable.
	Ping(ctx context.Context) error
}
