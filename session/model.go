package session

import "time"

// Session is the server-side record of one login.
type Session struct {
	SessionID string
	UserID    string
	Email     string
	CreatedAt int64
	ExpiresAt int64
}

// Expired reports whether s has passed its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt <= now.Unix()
}
