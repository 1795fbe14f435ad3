package middleware

import (
	"net/http"
	"time"

	"github.com/zengzjie/food-delivery-sass/auth"
)

// SetSessionCookies writes the access and refresh cookies for pair.
//
// The access cookie is readable by scripts so the web client can copy it into
// the Authorization header; the refresh cookie is httpOnly. Both are
// SameSite=Lax, and Secure with a Domain in production.
func SetSessionCookies(w http.ResponseWriter, cfg auth.CookieConfig, pair *auth.TokenPair) {
	http.SetCookie(w, sessionCookie(cfg, cfg.AccessName, pair.AccessToken, cfg.AccessMaxAge, false))
	http.SetCookie(w, sessionCookie(cfg, cfg.RefreshName, pair.RefreshToken, cfg.RefreshMaxAge, true))
}

// ClearSessionCookies expires both cookies, as logout does.
func ClearSessionCookies(w http.ResponseWriter, cfg auth.CookieConfig) {
	for _, c := range []*http.Cookie{
		sessionCookie(cfg, cfg.AccessName, "", 0, false),
		sessionCookie(cfg, cfg.RefreshName, "", 0, true),
	} {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func sessionCookie(cfg auth.CookieConfig, name, value string, maxAge time.Duration, httpOnly bool) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: httpOnly,
		SameSite: http.SameSiteLaxMode,
	}
	if cfg.Production {
		c.Secure = true
		c.Domain = cfg.Domain
	}
	return c
}
