package ports

import (
	"context"
	"time"

	"archie-core-session-layer/internal/domain"
)

// SessionRepository defines the interface for durable session persistence.
// It is the source of truth when the token cache misses or is stale.
//
// Lookup methods return (nil, nil) when no matching session exists;
// infrastructure failures are returned wrapped in domain.ErrStoreUnavailable.
type SessionRepository interface {
	// Upsert atomically inserts or updates the session keyed on
	// (shop, session_id). The session comes out active either way: an
	// upsert of a terminated identifier reactivates it. Token, metadata
	// and last_accessed_at are replaced; last writer wins under
	// concurrent calls for the same key.
	Upsert(ctx context.Context, session *domain.Session) (*domain.Session, error)

	// GetBySession retrieves one session by (shop, sessionID).
	GetBySession(ctx context.Context, shop, sessionID string) (*domain.Session, error)

	// MostRecentActive retrieves the active session of shop with the newest
	// last_accessed_at.
	MostRecentActive(ctx context.Context, shop string) (*domain.Session, error)

	// ListActive lists all active sessions for shop, newest first.
	ListActive(ctx context.Context, shop string) ([]*domain.Session, error)

	// CountActive counts active sessions for shop.
	CountActive(ctx context.Context, shop string) (int, error)

	// SetActive flips the active flag of one session.
	SetActive(ctx context.Context, shop, sessionID string, active bool) error

	// Touch bumps last_accessed_at to now, never moving it backwards.
	Touch(ctx context.Context, shop, sessionID string) error

	// MarkInactiveBefore deactivates sessions whose last_accessed_at is
	// older than cutoff. Returns the number of sessions affected.
	MarkInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteCreatedBefore hard-deletes sessions created before cutoff,
	// active or not, and returns them so callers can evict cache entries.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Session, error)

	// DeleteByShop removes all sessions of a shop (cascade on shop removal).
	DeleteByShop(ctx context.Context, shop string) error

	// EnsureIndexes creates the unique session_id index and the
	// (shop, active) compound index.
	EnsureIndexes(ctx context.Context) error
}

// ShopRepository defines the interface for shop persistence
type ShopRepository interface {
	SaveShop(ctx context.Context, shop *domain.Shop) error
	GetShop(ctx context.Context, shopDomain string) (*domain.Shop, error)
	DeleteShop(ctx context.Context, shopDomain string) error
}
