package middleware

import (
	"net/http"
	"strings"
)

// TokenFromRequest returns the bearer token from the Authorization header,
// falling back to the access cookie named cookieName.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	if cookieName == "" {
		return ""
	}
	c, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	// The web client sends "Bearer undefined" before its first login.
	if token == "" || token == "undefined" || token == "null" {
		return "", false
	}

	return token, true
}
