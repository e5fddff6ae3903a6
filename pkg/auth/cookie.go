package auth

import (
	"net/http"
	"time"
)

// SessionCookieName is the only place the session token is read from.
const SessionCookieName = "AUTH-TOKEN"

// CookieConfig controls the attributes of the session cookie.
type CookieConfig struct {
	// Domain is the cookie domain. Empty makes the cookie host-only.
	Domain string `json:"domain" yaml:"domain" env:"IDENTITY_COOKIE_DOMAIN"`

	// Secure sets the Secure attribute. SameSite=None requires it in
	// browsers, so only disable it for plain-HTTP local development.
	Secure bool `json:"secure" yaml:"secure" env:"IDENTITY_COOKIE_SECURE"`
}

// DefaultCookieConfig returns a host-only, secure cookie configuration.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{Secure: true}
}

// NewSessionCookie returns the cookie carrying a freshly issued session
// token. Its Max-Age matches the session lifetime.
func NewSessionCookie(cfg CookieConfig, token string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   int(ttl / time.Second),
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	}
}

// ClearedSessionCookie returns a cookie that makes the browser drop the
// session cookie. net/http renders MaxAge<0 as Max-Age=0.
func ClearedSessionCookie(cfg CookieConfig) *http.Cookie {
	c := NewSessionCookie(cfg, "", 0)
	c.MaxAge = -1
	return c
}

// SessionTokenFromRequest returns the AUTH-TOKEN cookie value, or "" when
// the cookie is absent.
func SessionTokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
