package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"archie-core-session-layer/internal/domain"
	"archie-core-session-layer/internal/metrics"
	"archie-core-session-layer/internal/ports"

	"github.com/rs/zerolog"
)

// ResolverService executes the ordered token resolution chain:
//
//  1. cache lookup by (shop, sessionID)
//  2. store lookup by (shop, sessionID), with cache write-back
//  3. cache lookup by the shop-only fallback key
//  4. store lookup for the most-recently-active session of the shop,
//     with cache write-back
//
// Each tier failure is treated as a miss at that tier and the chain
// proceeds. Only when both the cache and the store reported infrastructure
// failures does resolution fail with domain.ErrStoreUnavailable instead of
// domain.ErrSessionNotFound.
type ResolverService struct {
	sessions     ports.SessionRepository
	cache        ports.TokenCache
	logger       zerolog.Logger
	cacheTimeout time.Duration
	storeTimeout time.Duration

	// wg tracks in-flight write-backs so shutdown can drain them.
	wg sync.WaitGroup
}

// NewResolverService creates a new resolver service
func NewResolverService(
	sessions ports.SessionRepository,
	cache ports.TokenCache,
	logger zerolog.Logger,
	cacheTimeout time.Duration,
	storeTimeout time.Duration,
) *ResolverService {
	if cacheTimeout <= 0 {
		cacheTimeout = 250 * time.Millisecond
	}
	if storeTimeout <= 0 {
		storeTimeout = 2 * time.Second
	}
	return &ResolverService{
		sessions:     sessions,
		cache:        cache,
		logger:       logger,
		cacheTimeout: cacheTimeout,
		storeTimeout: storeTimeout,
	}
}

// Resolve returns the access token for (shop, sessionID), walking the
// fallback chain. sessionID may be empty, in which case only the shop-level
// tiers (steps 3 and 4) are consulted.
func (s *ResolverService) Resolve(ctx context.Context, shop, sessionID string) (string, error) {
	if shop == "" {
		return "", fmt.Errorf("shop is required: %w", domain.ErrSessionNotFound)
	}

	var cacheFailed, storeFailed bool

	// Step 1: cache by (shop, sessionID). Pure read, no side effects.
	if sessionID != "" {
		token, err := s.cacheGet(ctx, func(cctx context.Context) (string, error) {
			return s.cache.GetBySession(cctx, shop, sessionID)
		})
		switch {
		case err == nil:
			metrics.ResolverLookups.WithLabelValues(metrics.TierSessionCache, "hit").Inc()
			metrics.ResolverResults.WithLabelValues("resolved").Inc()
			return token, nil
		case errors.Is(err, domain.ErrCacheMiss):
			metrics.ResolverLookups.WithLabelValues(metrics.TierSessionCache, "miss").Inc()
		default:
			cacheFailed = true
			metrics.ResolverLookups.WithLabelValues(metrics.TierSessionCache, "error").Inc()
			s.logger.Warn().Err(err).Str("shop", shop).Msg("Session cache lookup failed, falling through")
		}
	}

	// Step 2: store by (shop, sessionID). Write back to cache on hit.
	if sessionID != "" {
		sess, err := s.storeGet(ctx, func(sctx context.Context) (*domain.Session, error) {
			return s.sessions.GetBySession(sctx, shop, sessionID)
		})
		switch {
		case err != nil:
			storeFailed = true
			metrics.ResolverLookups.WithLabelValues(metrics.TierSessionStore, "error").Inc()
			s.logger.Warn().Err(err).Str("shop", shop).Msg("Session store lookup failed, falling through")
		case sess != nil && sess.Active:
			metrics.ResolverLookups.WithLabelValues(metrics.TierSessionStore, "hit").Inc()
			metrics.ResolverResults.WithLabelValues("resolved").Inc()
			s.writeBack(shop, sess.ID, sess.Token)
			s.touch(shop, sess.ID)
			return sess.Token, nil
		default:
			metrics.ResolverLookups.WithLabelValues(metrics.TierSessionStore, "miss").Inc()
		}
	}

	// Step 3: cache by shop-only fallback key. Covers a lost session
	// identifier with a surviving shop cookie. Pure read.
	token, err := s.cacheGet(ctx, func(cctx context.Context) (string, error) {
		return s.cache.GetByShop(cctx, shop)
	})
	switch {
	case err == nil:
		metrics.ResolverLookups.WithLabelValues(metrics.TierShopCache, "hit").Inc()
		metrics.ResolverResults.WithLabelValues("resolved").Inc()
		return token, nil
	case errors.Is(err, domain.ErrCacheMiss):
		metrics.ResolverLookups.WithLabelValues(metrics.TierShopCache, "miss").Inc()
	default:
		cacheFailed = true
		metrics.ResolverLookups.WithLabelValues(metrics.TierShopCache, "error").Inc()
		s.logger.Warn().Err(err).Str("shop", shop).Msg("Shop cache lookup failed, falling through")
	}

	// Step 4: most-recently-active session in the store.
	sess, err := s.storeGet(ctx, func(sctx context.Context) (*domain.Session, error) {
		return s.sessions.MostRecentActive(sctx, shop)
	})
	switch {
	case err != nil:
		storeFailed = true
		metrics.ResolverLookups.WithLabelValues(metrics.TierShopStore, "error").Inc()
		s.logger.Warn().Err(err).Str("shop", shop).Msg("Most-recent-active lookup failed")
	case sess != nil:
		metrics.ResolverLookups.WithLabelValues(metrics.TierShopStore, "hit").Inc()
		metrics.ResolverResults.WithLabelValues("resolved").Inc()
		s.writeBack(shop, sess.ID, sess.Token)
		s.touch(shop, sess.ID)
		return sess.Token, nil
	default:
		metrics.ResolverLookups.WithLabelValues(metrics.TierShopStore, "miss").Inc()
	}

	// Cache and store both down means we cannot tell a missing session from
	// an unreachable backend; report the infrastructure failure instead of
	// sending the merchant back through OAuth.
	if cacheFailed && storeFailed {
		metrics.ResolverResults.WithLabelValues("unavailable").Inc()
		return "", fmt.Errorf("all resolution tiers unavailable: %w", domain.ErrStoreUnavailable)
	}

	metrics.ResolverResults.WithLabelValues("not_found").Inc()
	return "", domain.ErrSessionNotFound
}

// Drain blocks until in-flight write-backs and touches have completed.
// Called on shutdown so best-effort writes are not lost with the process.
func (s *ResolverService) Drain() {
	s.wg.Wait()
}

func (s *ResolverService) cacheGet(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	defer cancel()
	return fn(cctx)
}

func (s *ResolverService) storeGet(ctx context.Context, fn func(context.Context) (*domain.Session, error)) (*domain.Session, error) {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return fn(sctx)
}

// writeBack repopulates both cache keys after a store hit. It runs off the
// request path; failures are counted and logged, never surfaced.
func (s *ResolverService) writeBack(shop, sessionID, token string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cacheTimeout)
		defer cancel()
		if err := s.cache.Put(ctx, shop, sessionID, token); err != nil {
			metrics.CacheWriteBackFailures.Inc()
			s.logger.Warn().Err(err).Str("shop", shop).Msg("Cache write-back failed")
		}
	}()
}

// touch bumps last_accessed_at after a store hit, best-effort.
func (s *ResolverService) touch(shop, sessionID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
		defer cancel()
		if err := s.sessions.Touch(ctx, shop, sessionID); err != nil {
			s.logger.Debug().Err(err).Str("shop", shop).Msg("Failed to bump last_accessed_at")
		}
	}()
}
