package middleware

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	shopCookie    = "shop"
	sessionCookie = "session_id"
)

// CookiePolicy issues the shop and session cookies. Cookies are scoped to
// the deployment's apex domain so session continuity survives
// cross-subdomain navigation, marked HttpOnly, and Secure outside local
// development.
type CookiePolicy struct {
	domain string
	secure bool
	maxAge time.Duration
}

// NewCookiePolicy derives the cookie scope from the deployment's app URL.
// For "https://dashboard.acme.example" the cookie domain is "acme.example",
// which per RFC 6265 covers every subdomain; for localhost no domain
// attribute is set and Secure is disabled.
func NewCookiePolicy(appURL string, maxAge time.Duration) *CookiePolicy {
	p := &CookiePolicy{secure: true, maxAge: maxAge}

	u, err := url.Parse(appURL)
	if err != nil || u.Hostname() == "" {
		return p
	}
	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" {
		p.secure = false
		return p
	}

	p.domain = apexDomain(host)
	return p
}

// ShopCookieName returns the shop cookie name
func (p *CookiePolicy) ShopCookieName() string { return shopCookie }

// SessionCookieName returns the session cookie name
func (p *CookiePolicy) SessionCookieName() string { return sessionCookie }

// SetShopCookie writes the shop cookie on the response
func (p *CookiePolicy) SetShopCookie(w http.ResponseWriter, shop string) {
	http.SetCookie(w, p.cookie(shopCookie, shop))
}

// SetSessionCookie writes the session cookie on the response
func (p *CookiePolicy) SetSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, p.cookie(sessionCookie, sessionID))
}

// ClearSessionCookie expires the session cookie
func (p *CookiePolicy) ClearSessionCookie(w http.ResponseWriter) {
	c := p.cookie(sessionCookie, "")
	c.MaxAge = -1
	http.SetCookie(w, c)
}

func (p *CookiePolicy) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   p.domain,
		MaxAge:   int(p.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// apexDomain reduces a hostname to its last two labels. Good enough for the
// deployments this service targets; multi-label public suffixes (co.uk)
// would need a suffix list.
func apexDomain(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}
	return strings.Join(parts[len(parts)-2:], ".")
}
