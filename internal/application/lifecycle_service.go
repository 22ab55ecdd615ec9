package application

import (
	"context"
	"fmt"

	"archie-core-session-layer/internal/domain"
	"archie-core-session-layer/internal/metrics"
	"archie-core-session-layer/internal/ports"

	"github.com/rs/zerolog"
)

// LifecycleService owns creation and update of sessions. It repairs missing
// or malformed session identifiers via the SessionIdentifierPolicy, performs
// the atomic store upsert, and writes through the token cache on every
// successful mutation.
type LifecycleService struct {
	sessions ports.SessionRepository
	shops    ports.ShopRepository
	cache    ports.TokenCache
	ids      *SessionIdentifierPolicy
	logger   zerolog.Logger
}

// NewLifecycleService creates a new session lifecycle service
func NewLifecycleService(
	sessions ports.SessionRepository,
	shops ports.ShopRepository,
	cache ports.TokenCache,
	ids *SessionIdentifierPolicy,
	logger zerolog.Logger,
) *LifecycleService {
	return &LifecycleService{
		sessions: sessions,
		shops:    shops,
		cache:    cache,
		ids:      ids,
		logger:   logger,
	}
}

// CreateOrUpdate upserts the session for (shop, rawSessionID) with the given
// token and request metadata. A missing or malformed rawSessionID is
// replaced by a synthesized fallback identifier rather than rejected.
// Synthesized identifiers receive the same expiry and cleanup treatment as
// organic ones. Upserting a terminated identifier reactivates the session,
// keeping the store row and the cache entries in agreement.
func (s *LifecycleService) CreateOrUpdate(ctx context.Context, shop, rawSessionID, token string, metadata domain.SessionMetadata) (*domain.Session, error) {
	return s.CreateOrUpdateWithProvenance(ctx, shop, rawSessionID, token, metadata, ProvenanceFallback)
}

// CreateOrUpdateWithProvenance is CreateOrUpdate with an explicit provenance
// tag for any identifier that has to be synthesized. The recovery
// coordinator and the request middleware pass their own provenance so audits
// can tell which layer repaired the session.
func (s *LifecycleService) CreateOrUpdateWithProvenance(ctx context.Context, shop, rawSessionID, token string, metadata domain.SessionMetadata, provenance Provenance) (*domain.Session, error) {
	if shop == "" {
		return nil, fmt.Errorf("shop is required")
	}
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}

	sessionID := rawSessionID
	upsertProvenance := "organic"
	if err := s.ids.Validate(rawSessionID); err != nil {
		sessionID = s.ids.Generate(provenance, shop)
		upsertProvenance = string(provenance)
		s.logger.Info().
			Str("shop", shop).
			Str("session_id", sessionID).
			Str("provenance", upsertProvenance).
			Msg("Synthesized fallback session identifier")
	}

	// Keep the shop row current so session rows always have an owner.
	if err := s.shops.SaveShop(ctx, &domain.Shop{Domain: shop}); err != nil {
		s.logger.Warn().Err(err).Str("shop", shop).Msg("Failed to upsert shop row")
	}

	session := &domain.Session{
		ID:        sessionID,
		Shop:      shop,
		Token:     token,
		IPAddress: metadata.IPAddress,
		UserAgent: metadata.UserAgent,
		Active:    true,
	}

	// A lost write here means the OAuth completion silently failed, so the
	// upsert is retried once before the failure is surfaced.
	saved, err := s.sessions.Upsert(ctx, session)
	if err != nil {
		s.logger.Warn().Err(err).Str("shop", shop).Msg("Session upsert failed, retrying once")
		saved, err = s.sessions.Upsert(ctx, session)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("shop", shop).Str("session_id", sessionID).Msg("Session upsert failed")
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	metrics.SessionUpserts.WithLabelValues(upsertProvenance).Inc()

	// Write through both cache keys. Cache failure degrades performance,
	// not correctness, so it is logged and swallowed.
	if err := s.cache.Put(ctx, shop, saved.ID, token); err != nil {
		s.logger.Warn().Err(err).Str("shop", shop).Str("session_id", saved.ID).Msg("Cache write-through failed")
	}

	s.logger.Info().
		Str("shop", shop).
		Str("session_id", saved.ID).
		Bool("synthesized", s.ids.IsSynthesized(saved.ID)).
		Msg("Session upserted")

	return saved, nil
}

// GetSession returns one session for display, or nil if it does not exist.
func (s *LifecycleService) GetSession(ctx context.Context, shop, sessionID string) (*domain.Session, error) {
	sess, err := s.sessions.GetBySession(ctx, shop, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// RemoveShop deletes a shop and cascades to all of its sessions. Only used
// on explicit account removal.
func (s *LifecycleService) RemoveShop(ctx context.Context, shop string) error {
	sessions, err := s.sessions.ListActive(ctx, shop)
	if err != nil {
		return fmt.Errorf("failed to list sessions for shop removal: %w", err)
	}

	if err := s.sessions.DeleteByShop(ctx, shop); err != nil {
		return fmt.Errorf("failed to delete sessions for shop: %w", err)
	}
	if err := s.shops.DeleteShop(ctx, shop); err != nil {
		return fmt.Errorf("failed to delete shop: %w", err)
	}

	for _, sess := range sessions {
		if err := s.cache.DeleteSession(ctx, shop, sess.ID); err != nil {
			s.logger.Warn().Err(err).Str("shop", shop).Str("session_id", sess.ID).Msg("Failed to evict session cache entry")
		}
	}
	if err := s.cache.DeleteShopKey(ctx, shop); err != nil {
		s.logger.Warn().Err(err).Str("shop", shop).Msg("Failed to evict shop cache entry")
	}

	s.logger.Info().Str("shop", shop).Int("sessions", len(sessions)).Msg("Removed shop and its sessions")
	return nil
}
