package domain

import "time"

// Session represents one authenticated browser/device context for a shop.
// The token is an opaque reference to the upstream access credential; this
// layer never inspects or refreshes it.
type Session struct {
	ID             string     `json:"id"`
	Shop           string     `json:"shop"`
	Token          string     `json:"-"`
	IPAddress      string     `json:"ip_address"`
	UserAgent      string     `json:"user_agent"`
	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Active         bool       `json:"active"`
}

// SessionMetadata carries the request context captured when a session is
// created or refreshed.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

// SessionInfo is the audit-safe projection of a Session returned to the
// dashboard (no token material).
type SessionInfo struct {
	ID             string    `json:"id"`
	Shop           string    `json:"shop"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	Active         bool      `json:"active"`
	IsCurrent      bool      `json:"is_current"`
}

// Info converts a Session to its audit-safe projection. current is the
// session identifier of the caller, used to mark "this is my session".
func (s *Session) Info(current string) SessionInfo {
	return SessionInfo{
		ID:             s.ID,
		Shop:           s.Shop,
		IPAddress:      s.IPAddress,
		UserAgent:      s.UserAgent,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessedAt,
		Active:         s.Active,
		IsCurrent:      current != "" && s.ID == current,
	}
}

// LimitReport is the result of a concurrent-session limit check.
type LimitReport struct {
	LimitReached   bool          `json:"limit_reached"`
	Max            int           `json:"max"`
	ActiveCount    int           `json:"active_count"`
	ActiveSessions []SessionInfo `json:"active_sessions"`
}
