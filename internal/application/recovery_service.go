package application

import (
	"context"
	"fmt"
	"net/url"

	"archie-core-session-layer/internal/domain"
	"archie-core-session-layer/internal/metrics"
	"archie-core-session-layer/internal/ports"

	"github.com/rs/zerolog"
)

// RecoveryService attempts exactly one automatic resolution pass after the
// resolver has exhausted its fallback chain. The caller still presents a
// shop identifier, just no resolvable session: if a durable active session
// exists in the store, its token is re-linked under a freshly synthesized
// identifier and resolution is retried once. Anything beyond that single
// pass is the caller's (or a rate limiter's) problem, not this subsystem's.
type RecoveryService struct {
	sessions  ports.SessionRepository
	lifecycle *LifecycleService
	resolver  *ResolverService
	logger    zerolog.Logger
	reauthURL string
}

// NewRecoveryService creates a new recovery coordinator. reauthURL is the
// base URL of the OAuth entry point; the shop is appended as a query
// parameter when re-authentication is required.
func NewRecoveryService(
	sessions ports.SessionRepository,
	lifecycle *LifecycleService,
	resolver *ResolverService,
	logger zerolog.Logger,
	reauthURL string,
) *RecoveryService {
	return &RecoveryService{
		sessions:  sessions,
		lifecycle: lifecycle,
		resolver:  resolver,
		logger:    logger,
		reauthURL: reauthURL,
	}
}

// Recover runs the single recovery pass for shop. On success it returns the
// token and the fresh session identifier the caller should adopt. On failure
// it returns a domain.AuthenticationRequiredError carrying the re-auth URL;
// no internal error detail leaks to the caller.
func (s *RecoveryService) Recover(ctx context.Context, shop string, metadata domain.SessionMetadata) (token string, sessionID string, err error) {
	// Bypass the cache: resolution already exhausted it, and a partial
	// cache write may be exactly what stranded this caller.
	durable, lookupErr := s.sessions.MostRecentActive(ctx, shop)
	if lookupErr != nil {
		s.logger.Warn().Err(lookupErr).Str("shop", shop).Msg("Recovery store lookup failed")
	}
	if durable == nil {
		metrics.RecoveryAttempts.WithLabelValues("reauth_required").Inc()
		return "", "", s.authenticationRequired(shop)
	}

	relinked, relinkErr := s.lifecycle.CreateOrUpdateWithProvenance(ctx, shop, "", durable.Token, metadata, ProvenanceRecovery)
	if relinkErr != nil {
		s.logger.Error().Err(relinkErr).Str("shop", shop).Msg("Recovery re-link failed")
		metrics.RecoveryAttempts.WithLabelValues("reauth_required").Inc()
		return "", "", s.authenticationRequired(shop)
	}

	token, resolveErr := s.resolver.Resolve(ctx, shop, relinked.ID)
	if resolveErr != nil {
		s.logger.Error().Err(resolveErr).Str("shop", shop).Str("session_id", relinked.ID).Msg("Resolution still failing after recovery re-link")
		metrics.RecoveryAttempts.WithLabelValues("reauth_required").Inc()
		return "", "", s.authenticationRequired(shop)
	}

	metrics.RecoveryAttempts.WithLabelValues("recovered").Inc()
	s.logger.Info().
		Str("shop", shop).
		Str("session_id", relinked.ID).
		Msg("Session recovered from durable shop-level token")
	return token, relinked.ID, nil
}

func (s *RecoveryService) authenticationRequired(shop string) error {
	reauth := s.reauthURL
	if reauth != "" {
		reauth = fmt.Sprintf("%s?shop=%s", reauth, url.QueryEscape(shop))
	}
	return &domain.AuthenticationRequiredError{
		Shop:      shop,
		ReauthURL: reauth,
	}
}
