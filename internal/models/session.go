package models

import "time"

// Session is the revocable record of one issued login. It exists apart
// from the access token so that an operator or the user can invalidate a
// still-valid token without decoding it: the auth middleware checks the
// session keyed by the token's jti claim.
type Session struct {
	ID        string
	UserID    string
	Provider  string // credential origin, "credentials" for password logins
	TokenID   string // unique, mirrors the access token jti claim
	IssuedAt  time.Time
	ExpiresAt time.Time
	UserAgent string
	IPAddress string
	CreatedAt time.Time
}

// Live reports whether the session has not yet expired.
func (s Session) Live(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// RateLimitRecord tracks failed attempts for one identifier (an email
// address or a client IP) inside a rolling window.
type RateLimitRecord struct {
	Identifier  string
	Attempts    int
	LastAttempt time.Time
	ResetTime   time.Time
}
