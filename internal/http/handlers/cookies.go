package handlers

import (
	"net/http"
	"time"

	"github.com/hongminglow/storefront-be/internal/auth"
	"github.com/hongminglow/storefront-be/internal/middleware"
)

const refreshTokenCookie = "refreshToken"

// Cookies mirrors issued tokens into HttpOnly cookies for browser clients.
// Secure cookies are sent cross-site (SameSite=None); otherwise Lax.
type Cookies struct {
	Secure     bool
	Domain     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (c Cookies) setTokens(w http.ResponseWriter, pair auth.TokenPair) {
	c.set(w, middleware.AccessTokenCookie, pair.AccessToken, c.AccessTTL)
	c.set(w, refreshTokenCookie, pair.RefreshToken, c.RefreshTTL)
}

func (c Cookies) setAccess(w http.ResponseWriter, token string) {
	c.set(w, middleware.AccessTokenCookie, token, c.AccessTTL)
}

func (c Cookies) clear(w http.ResponseWriter) {
	for _, name := range []string{middleware.AccessTokenCookie, refreshTokenCookie} {
		cookie := c.base(name, "")
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
		http.SetCookie(w, cookie)
	}
}

func (c Cookies) set(w http.ResponseWriter, name, value string, ttl time.Duration) {
	cookie := c.base(name, value)
	if ttl > 0 {
		cookie.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, cookie)
}

func (c Cookies) base(name, value string) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	if c.Secure {
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: sameSite,
	}
}
