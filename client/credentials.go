package client

import (
	"net/http"
	"net/url"
)

// Default cookie names, matching the server-side defaults.
const (
	DefaultAccessCookie  = "Authorization"
	DefaultRefreshCookie = "Refresh_Token"
)

// CookieCredentials reads the session from a cookie jar scoped to one origin.
type CookieCredentials struct {
	Jar         http.CookieJar
	URL         *url.URL
	AccessName  string
	RefreshName string
}

// NewCookieCredentials uses the default cookie names.
func NewCookieCredentials(jar http.CookieJar, origin *url.URL) *CookieCredentials {
	return &CookieCredentials{
		Jar:         jar,
		URL:         origin,
		AccessName:  DefaultAccessCookie,
		RefreshName: DefaultRefreshCookie,
	}
}

// HasSession reports whether either session cookie is present.
func (c *CookieCredentials) HasSession() bool {
	return c.AccessToken() != "" || c.RefreshToken() != ""
}

// AccessToken returns the access cookie value, or "".
func (c *CookieCredentials) AccessToken() string {
	return c.cookie(c.AccessName)
}

// RefreshToken returns the refresh cookie value, or "".
func (c *CookieCredentials) RefreshToken() string {
	return c.cookie(c.RefreshName)
}

// Clear expires both session cookies in the jar.
func (c *CookieCredentials) Clear() {
	c.Jar.SetCookies(c.URL, []*http.Cookie{
		{Name: c.AccessName, Path: "/", MaxAge: -1},
		{Name: c.RefreshName, Path: "/", MaxAge: -1},
	})
}

func (c *CookieCredentials) cookie(name string) string {
	for _, ck := range c.Jar.Cookies(c.URL) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}
