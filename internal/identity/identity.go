// Package identity resolves the rate-limiting client identity for a request.
// Authenticated sessions carry a session cookie; clients without one fall
// back to a request fingerprint so anonymous traffic is still limited
// per-client rather than globally.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CookieName is the session cookie carrying the client's limiter identity.
const CookieName = "aria_sid"

// Client is the resolved identity for one request.
type Client struct {
	ID string
	// Fingerprint is true when ID was derived from request attributes
	// rather than a session cookie. Fingerprint identities are weaker:
	// clients behind one NAT may share one.
	Fingerprint bool
}

// Resolve extracts the client identity from a request. A valid session
// cookie wins; otherwise the identity is a fingerprint of the caller's
// address and user agent.
func Resolve(r *http.Request) Client {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return Client{ID: c.Value}
	}
	return Client{ID: fingerprint(r), Fingerprint: true}
}

// NewSessionID mints a fresh session identity.
func NewSessionID() string {
	return uuid.NewString()
}

// IssueCookie writes the session cookie. maxAge should match the rate-limit
// window so an expired cookie and a reset window coincide.
func IssueCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// fingerprint hashes the caller's network address and user agent. The
// X-Forwarded-For first hop is preferred so proxied clients stay distinct.
func fingerprint(r *http.Request) string {
	addr := clientAddr(r)
	sum := sha256.Sum256([]byte(addr + "|" + r.UserAgent()))
	return "fp-" + hex.EncodeToString(sum[:8])
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
