// Package auth implements the relay's stateless shared-secret session.
//
// A session token is the hex-encoded SHA-256 of the shared secret. Nothing
// is stored server side: a presented token is valid iff recomputing the
// hash yields the same value. The token carries no expiry claim, so a
// captured cookie stays valid until the secret is rotated; the cookie's
// Max-Age is only a browser hint.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

const (
	// CookieName is the session cookie carrying the derived token.
	CookieName = "api_proxy_auth_token"

	// SessionMaxAge is the browser-side lifetime of the session cookie in seconds.
	SessionMaxAge = 86400
)

// DeriveToken returns the lowercase hex SHA-256 digest of secret.
func DeriveToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// IsAuthenticated reports whether r carries a session cookie proving
// knowledge of secret. An empty secret disables authentication entirely.
// A missing or malformed cookie header fails closed.
func IsAuthenticated(r *http.Request, secret string) bool {
	if secret == "" {
		return true
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	return ValidToken(cookie.Value, secret)
}

// ValidToken compares a presented token against the token derived from secret.
func ValidToken(token, secret string) bool {
	expected := DeriveToken(secret)
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}

// CheckPassword compares a submitted password with the configured secret.
func CheckPassword(candidate, secret string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(secret)) == 1
}

// SessionCookie builds the cookie issued after a successful login.
func SessionCookie(secret string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    DeriveToken(secret),
		Path:     "/",
		MaxAge:   SessionMaxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}
