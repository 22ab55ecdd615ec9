package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"archie-core-session-layer/internal/application"
	"archie-core-session-layer/internal/domain"

	"github.com/rs/zerolog"
)

// SessionContextMiddleware reads the shop and session cookies into the
// request context. It never rejects a request; routes that need a resolved
// token use RequireSession.
func SessionContextMiddleware(cookies *CookiePolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if shop, err := r.Cookie(cookies.ShopCookieName()); err == nil && shop.Value != "" {
				ctx = domain.WithShop(ctx, shop.Value)
			}
			if sess, err := r.Cookie(cookies.SessionCookieName()); err == nil && sess.Value != "" {
				ctx = domain.WithSessionID(ctx, sess.Value)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession resolves a token for every request before the handler runs.
// Resolution failures trigger the single recovery pass; only when that also
// fails does the client get told to re-authenticate. The resolved token is
// placed in the request context.
func RequireSession(
	resolver *application.ResolverService,
	recovery *application.RecoveryService,
	cookies *CookiePolicy,
	logger zerolog.Logger,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			shop := domain.GetShopFromContext(ctx)
			sessionID := domain.GetSessionIDFromContext(ctx)

			if shop == "" {
				writeAuthRequired(w, "", "")
				return
			}

			token, err := resolver.Resolve(ctx, shop, sessionID)
			if err == nil {
				next.ServeHTTP(w, r.WithContext(domain.WithToken(ctx, token)))
				return
			}

			if errors.Is(err, domain.ErrStoreUnavailable) {
				logger.Error().Err(err).Str("shop", shop).Msg("Token resolution unavailable")
				writeError(w, http.StatusServiceUnavailable, "session backend unavailable")
				return
			}

			// One recovery pass per failed request, never more.
			metadata := domain.SessionMetadata{
				IPAddress: r.RemoteAddr,
				UserAgent: r.UserAgent(),
			}
			token, recoveredID, err := recovery.Recover(ctx, shop, metadata)
			if err != nil {
				var authErr *domain.AuthenticationRequiredError
				if errors.As(err, &authErr) {
					writeAuthRequired(w, authErr.Shop, authErr.ReauthURL)
					return
				}
				logger.Error().Err(err).Str("shop", shop).Msg("Session recovery failed")
				writeError(w, http.StatusServiceUnavailable, "session backend unavailable")
				return
			}

			// The caller adopts the recovered session identifier.
			cookies.SetSessionCookie(w, recoveredID)
			ctx = domain.WithSessionID(ctx, recoveredID)
			next.ServeHTTP(w, r.WithContext(domain.WithToken(ctx, token)))
		})
	}
}

func writeAuthRequired(w http.ResponseWriter, shop, reauthURL string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":      "authentication_required",
		"shop":       shop,
		"reauth_url": reauthURL,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
