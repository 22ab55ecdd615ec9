package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"archie-core-session-layer/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookiePolicyApexDomainScope(t *testing.T) {
	tests := []struct {
		name       string
		appURL     string
		wantDomain string
		wantSecure bool
	}{
		{"subdomain deployment", "https://dashboard.acme.example", "acme.example", true},
		{"deep subdomain", "https://eu.dashboard.acme.example", "acme.example", true},
		{"apex deployment", "https://acme.example", "acme.example", true},
		{"localhost", "http://localhost:8080", "", false},
		{"unparseable", "::not-a-url::", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewCookiePolicy(tt.appURL, time.Hour)

			rec := httptest.NewRecorder()
			p.SetSessionCookie(rec, "s1")

			cookies := rec.Result().Cookies()
			require.Len(t, cookies, 1)
			c := cookies[0]

			assert.Equal(t, "session_id", c.Name)
			assert.Equal(t, "s1", c.Value)
			assert.Equal(t, tt.wantDomain, c.Domain)
			assert.Equal(t, tt.wantSecure, c.Secure)
			assert.True(t, c.HttpOnly, "session cookie must not be script-accessible")
		})
	}
}

func TestCookiePolicySetsBothCookies(t *testing.T) {
	p := NewCookiePolicy("https://dashboard.acme.example", time.Hour)

	rec := httptest.NewRecorder()
	p.SetShopCookie(rec, "acme.example")
	p.SetSessionCookie(rec, "s1")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, "shop", cookies[0].Name)
	assert.Equal(t, "session_id", cookies[1].Name)
	for _, c := range cookies {
		assert.True(t, c.HttpOnly)
		assert.Equal(t, "acme.example", c.Domain)
	}
}

func TestClearSessionCookie(t *testing.T) {
	p := NewCookiePolicy("https://dashboard.acme.example", time.Hour)

	rec := httptest.NewRecorder()
	p.ClearSessionCookie(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestSessionContextMiddleware(t *testing.T) {
	p := NewCookiePolicy("https://dashboard.acme.example", time.Hour)

	var gotShop, gotSession string
	handler := SessionContextMiddleware(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotShop = domain.GetShopFromContext(r.Context())
		gotSession = domain.GetSessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "shop", Value: "acme.example"})
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "s1"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "acme.example", gotShop)
	assert.Equal(t, "s1", gotSession)

	// No cookies at all: the middleware is a pass-through.
	gotShop, gotSession = "sentinel", "sentinel"
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, gotShop)
	assert.Empty(t, gotSession)
}
