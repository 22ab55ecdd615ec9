package domain

import "context"

// contextKey is a private type for context keys to avoid collisions
type contextKey string

const (
	shopContextKey      contextKey = "shop"
	sessionIDContextKey contextKey = "session_id"
	tokenContextKey     contextKey = "token"
)

// WithShop returns a context carrying the shop domain
func WithShop(ctx context.Context, shop string) context.Context {
	return context.WithValue(ctx, shopContextKey, shop)
}

// GetShopFromContext extracts the shop domain from the context
func GetShopFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(shopContextKey).(string); ok {
		return v
	}
	return ""
}

// WithSessionID returns a context carrying the session identifier
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, sessionID)
}

// GetSessionIDFromContext extracts the session identifier from the context
func GetSessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDContextKey).(string); ok {
		return v
	}
	return ""
}

// WithToken returns a context carrying the resolved access token
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// GetTokenFromContext extracts the resolved access token from the context
func GetTokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tokenContextKey).(string); ok {
		return v
	}
	return ""
}
