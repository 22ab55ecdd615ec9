package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"archie-core-session-layer/internal/application"
	"archie-core-session-layer/internal/domain"
	"archie-core-session-layer/internal/infrastructure/middleware"
	"archie-core-session-layer/internal/ports"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// SessionHandlers exposes the session management surface consumed by the
// dashboard UI, plus the OAuth completion intake endpoint.
type SessionHandlers struct {
	lifecycle *application.LifecycleService
	limits    *application.LimitService
	cleanup   *application.CleanupScheduler
	cache     ports.TokenCache
	cookies   *middleware.CookiePolicy
	logger    zerolog.Logger
}

// NewSessionHandlers creates the session HTTP handlers
func NewSessionHandlers(
	lifecycle *application.LifecycleService,
	limits *application.LimitService,
	cleanup *application.CleanupScheduler,
	cache ports.TokenCache,
	cookies *middleware.CookiePolicy,
	logger zerolog.Logger,
) *SessionHandlers {
	return &SessionHandlers{
		lifecycle: lifecycle,
		limits:    limits,
		cleanup:   cleanup,
		cache:     cache,
		cookies:   cookies,
		logger:    logger,
	}
}

type createSessionRequest struct {
	Shop      string `json:"shop"`
	SessionID string `json:"session_id,omitempty"`
	Token     string `json:"token"`
}

// HandleCreateSession is the OAuth completion intake: the OAuth collaborator
// hands over (shop, optional session id, token) after a successful exchange.
// Creating a brand-new session is subject to the concurrent-session limit;
// refreshing an existing one is not.
func (h *SessionHandlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Shop == "" || req.Token == "" {
		h.writeError(w, http.StatusBadRequest, "shop and token are required")
		return
	}

	metadata := domain.SessionMetadata{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}

	isRefresh := false
	if req.SessionID != "" {
		existing, err := h.lifecycle.GetSession(ctx, req.Shop, req.SessionID)
		if err != nil {
			h.logger.Error().Err(err).Str("shop", req.Shop).Msg("Failed to look up existing session")
			h.writeError(w, http.StatusServiceUnavailable, "session backend unavailable")
			return
		}
		// Reviving a terminated identifier occupies a fresh slot, so only
		// a still-active session bypasses the limit check.
		isRefresh = existing != nil && existing.Active
	}

	if !isRefresh {
		report, err := h.limits.Enforce(ctx, req.Shop, req.SessionID)
		if errors.Is(err, domain.ErrLimitReached) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": "session_limit_reached",
				"limit": report,
			})
			return
		}
		if err != nil {
			h.logger.Error().Err(err).Str("shop", req.Shop).Msg("Limit check failed")
			h.writeError(w, http.StatusServiceUnavailable, "session backend unavailable")
			return
		}
	}

	session, err := h.lifecycle.CreateOrUpdate(ctx, req.Shop, req.SessionID, req.Token, metadata)
	if err != nil {
		h.logger.Error().Err(err).Str("shop", req.Shop).Msg("Failed to create or update session")
		h.writeError(w, http.StatusInternalServerError, "failed to persist session, please retry login")
		return
	}

	h.cookies.SetShopCookie(w, session.Shop)
	h.cookies.SetSessionCookie(w, session.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(session.Info(session.ID))
}

// HandleListSessions lists the active sessions of the caller's shop, with
// the caller's own session marked.
func (h *SessionHandlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shop := domain.GetShopFromContext(ctx)
	current := domain.GetSessionIDFromContext(ctx)

	report, err := h.limits.CheckLimit(ctx, shop, current)
	if err != nil {
		h.logger.Error().Err(err).Str("shop", shop).Msg("Failed to list sessions")
		h.writeError(w, http.StatusServiceUnavailable, "session backend unavailable")
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"sessions": report.ActiveSessions,
		"count":    report.ActiveCount,
	})
}

// HandleCurrentSession returns the caller's session detail.
func (h *SessionHandlers) HandleCurrentSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shop := domain.GetShopFromContext(ctx)
	current := domain.GetSessionIDFromContext(ctx)

	if current == "" {
		h.writeError(w, http.StatusNotFound, "no current session")
		return
	}

	session, err := h.lifecycle.GetSession(ctx, shop, current)
	if err != nil {
		h.logger.Error().Err(err).Str("shop", shop).Msg("Failed to get current session")
		h.writeError(w, http.StatusServiceUnavailable, "session backend unavailable")
		return
	}
	if session == nil {
		h.writeError(w, http.StatusNotFound, "no current session")
		return
	}

	h.writeJSON(w, session.Info(current))
}

// HandleTerminateSession terminates one named session of the caller's shop.
func (h *SessionHandlers) HandleTerminateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shop := domain.GetShopFromContext(ctx)
	sessionID := chi.URLParam(r, "sessionID")

	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "sessionID is required")
		return
	}

	if err := h.limits.Terminate(ctx, shop, sessionID); err != nil {
		h.logger.Error().Err(err).Str("shop", shop).Str("session_id", sessionID).Msg("Failed to terminate session")
		h.writeError(w, http.StatusInternalServerError, "failed to terminate session")
		return
	}

	if sessionID == domain.GetSessionIDFromContext(ctx) {
		h.cookies.ClearSessionCookie(w)
	}

	h.writeJSON(w, map[string]string{"terminated": sessionID})
}

// HandleTerminateOthers terminates every session of the caller's shop except
// the caller's own.
func (h *SessionHandlers) HandleTerminateOthers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shop := domain.GetShopFromContext(ctx)
	current := domain.GetSessionIDFromContext(ctx)

	terminated, err := h.limits.TerminateOthers(ctx, shop, current)
	if err != nil {
		h.logger.Error().Err(err).Str("shop", shop).Msg("Failed to terminate other sessions")
		h.writeError(w, http.StatusInternalServerError, "failed to terminate sessions")
		return
	}

	h.writeJSON(w, map[string]int{"terminated": terminated})
}

// HandleLimitCheck returns the concurrent-session limit report for the
// caller's shop.
func (h *SessionHandlers) HandleLimitCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shop := domain.GetShopFromContext(ctx)
	current := domain.GetSessionIDFromContext(ctx)

	report, err := h.limits.CheckLimit(ctx, shop, current)
	if err != nil {
		h.logger.Error().Err(err).Str("shop", shop).Msg("Limit check failed")
		h.writeError(w, http.StatusServiceUnavailable, "session backend unavailable")
		return
	}

	h.writeJSON(w, report)
}

// HandleHealthSummary returns the diagnostic summary: active session count
// for the caller's shop, cache reachability, and last cleanup sweep times.
func (h *SessionHandlers) HandleHealthSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shop := domain.GetShopFromContext(ctx)

	summary := map[string]interface{}{
		"cache_healthy": h.cache.Ping(ctx) == nil,
	}

	if shop != "" {
		report, err := h.limits.CheckLimit(ctx, shop, "")
		if err == nil {
			summary["active_sessions"] = report.ActiveCount
			summary["max_sessions"] = report.Max
		}
	}

	if h.cleanup != nil {
		inactivity, retention := h.cleanup.LastRuns()
		summary["last_inactivity_sweep"] = sweepTime(inactivity)
		summary["last_retention_sweep"] = sweepTime(retention)
	}

	h.writeJSON(w, summary)
}

func sweepTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func (h *SessionHandlers) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *SessionHandlers) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
