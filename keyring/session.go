package keyring

import (
	"net/http"
	"time"
)

// Session is the portal state returned by a successful login. The portal is
// cookie based, so Cookies must be replayed on every follow-up call.
type Session struct {
	Cookies           []*http.Cookie
	TemporaryAPIToken string
	DeveloperID       string
	// LoginIP is the caller address as seen by the portal at login time.
	LoginIP   string
	ExpiresAt time.Time
}

// Live reports whether the session can still be used at now. A zero
// ExpiresAt means the portal did not announce an expiry.
func (s *Session) Live(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}
