package domain

import "errors"

// ErrSessionNotFound is returned when the resolution chain is exhausted
// without producing a token. Callers use errors.Is to distinguish it from
// infrastructure failures.
var ErrSessionNotFound = errors.New("session not found")

// ErrCacheMiss is returned by the token cache when the key is absent or its
// TTL has elapsed. Callers use errors.Is to distinguish a true miss from a
// cache infrastructure failure.
var ErrCacheMiss = errors.New("cache miss")

// ErrCacheUnavailable wraps cache infrastructure failures (connection,
// timeout). The resolver treats it as a miss at that tier.
var ErrCacheUnavailable = errors.New("cache unavailable")

// ErrStoreUnavailable wraps session store infrastructure failures. Read-path
// callers treat it as a miss at that tier; write-path callers surface it.
var ErrStoreUnavailable = errors.New("session store unavailable")

// ErrLimitReached is returned when a shop already has the maximum number of
// active sessions and a new one cannot be created until one is terminated.
var ErrLimitReached = errors.New("concurrent session limit reached")

// ErrInvalidSessionID is returned by identifier validation for malformed or
// empty identifiers. Lifecycle callers recover by synthesizing a fallback
// identifier instead of rejecting the request.
var ErrInvalidSessionID = errors.New("invalid session identifier")

// AuthenticationRequiredError signals that resolution and recovery both
// failed and the caller must restart the OAuth flow. It carries the re-auth
// URL and never any internal error detail.
type AuthenticationRequiredError struct {
	Shop      string
	ReauthURL string
}

func (e *AuthenticationRequiredError) Error() string {
	return "authentication required for shop " + e.Shop
}

// IsAuthenticationRequired reports whether err is (or wraps) an
// AuthenticationRequiredError.
func IsAuthenticationRequired(err error) bool {
	var target *AuthenticationRequiredError
	return errors.As(err, &target)
}
