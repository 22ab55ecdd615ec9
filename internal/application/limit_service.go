package application

import (
	"context"
	"fmt"

	"archie-core-session-layer/internal/domain"
	"archie-core-session-layer/internal/ports"

	"github.com/rs/zerolog"
)

// DefaultMaxSessions is the concurrent-session ceiling used when no limit is
// configured.
const DefaultMaxSessions = 5

// LimitService enforces the maximum-concurrent-sessions policy per shop and
// terminates sessions chosen by the merchant.
type LimitService struct {
	sessions ports.SessionRepository
	cache    ports.TokenCache
	logger   zerolog.Logger
	max      int
}

// NewLimitService creates a new session limit service
func NewLimitService(
	sessions ports.SessionRepository,
	cache ports.TokenCache,
	logger zerolog.Logger,
	max int,
) *LimitService {
	if max <= 0 {
		max = DefaultMaxSessions
	}
	return &LimitService{
		sessions: sessions,
		cache:    cache,
		logger:   logger,
		max:      max,
	}
}

// Max returns the configured concurrent session ceiling.
func (s *LimitService) Max() int {
	return s.max
}

// CheckLimit counts active sessions for shop against the configured maximum.
// When the limit is reached the full session list is returned, with the
// caller's current session flagged, so the UI can offer a choice of which
// session to terminate. Inactive sessions never count against the limit.
func (s *LimitService) CheckLimit(ctx context.Context, shop, currentSessionID string) (*domain.LimitReport, error) {
	active, err := s.sessions.ListActive(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}

	report := &domain.LimitReport{
		Max:          s.max,
		ActiveCount:  len(active),
		LimitReached: len(active) >= s.max,
	}
	for _, sess := range active {
		report.ActiveSessions = append(report.ActiveSessions, sess.Info(currentSessionID))
	}

	if report.LimitReached {
		s.logger.Info().
			Str("shop", shop).
			Int("active", report.ActiveCount).
			Int("max", s.max).
			Msg("Concurrent session limit reached")
	}

	return report, nil
}

// Enforce is CheckLimit with the outcome expressed as an error: when the
// shop is at its ceiling it returns the report together with
// domain.ErrLimitReached, so intake callers can gate creation with a single
// errors.Is check.
func (s *LimitService) Enforce(ctx context.Context, shop, currentSessionID string) (*domain.LimitReport, error) {
	report, err := s.CheckLimit(ctx, shop, currentSessionID)
	if err != nil {
		return nil, err
	}
	if report.LimitReached {
		return report, fmt.Errorf("shop %s has %d of %d sessions: %w", shop, report.ActiveCount, report.Max, domain.ErrLimitReached)
	}
	return report, nil
}

// Terminate marks one session inactive and evicts its cache entries. The
// shop-level fallback key is only cleared when the terminated session was
// the most-recently-active one; clearing it unconditionally would evict a
// different, still-valid session's fallback entry.
func (s *LimitService) Terminate(ctx context.Context, shop, sessionID string) error {
	mostRecent, err := s.sessions.MostRecentActive(ctx, shop)
	if err != nil {
		s.logger.Warn().Err(err).Str("shop", shop).Msg("Failed to determine most-recent-active session before terminate")
	}

	if err := s.sessions.SetActive(ctx, shop, sessionID, false); err != nil {
		return fmt.Errorf("failed to terminate session: %w", err)
	}

	if err := s.cache.DeleteSession(ctx, shop, sessionID); err != nil {
		s.logger.Warn().Err(err).Str("shop", shop).Str("session_id", sessionID).Msg("Failed to evict session cache entry")
	}
	if mostRecent != nil && mostRecent.ID == sessionID {
		if err := s.cache.DeleteShopKey(ctx, shop); err != nil {
			s.logger.Warn().Err(err).Str("shop", shop).Msg("Failed to evict shop fallback cache entry")
		}
	}

	s.logger.Info().Str("shop", shop).Str("session_id", sessionID).Msg("Session terminated")
	return nil
}

// TerminateOthers terminates every active session of shop except
// keepSessionID. Returns the number of sessions terminated.
func (s *LimitService) TerminateOthers(ctx context.Context, shop, keepSessionID string) (int, error) {
	active, err := s.sessions.ListActive(ctx, shop)
	if err != nil {
		return 0, fmt.Errorf("failed to list active sessions: %w", err)
	}

	terminated := 0
	for _, sess := range active {
		if sess.ID == keepSessionID {
			continue
		}
		if err := s.Terminate(ctx, shop, sess.ID); err != nil {
			return terminated, err
		}
		terminated++
	}

	s.logger.Info().Str("shop", shop).Int("terminated", terminated).Msg("Terminated all other sessions")
	return terminated, nil
}
