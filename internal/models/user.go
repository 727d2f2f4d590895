package models

import "time"

type UserRole string

const (
	UserRoleUser    UserRole = "user"
	UserRoleManager UserRole = "manager"
	UserRoleAdmin   UserRole = "admin"
)

type User struct {
	ID            string
	Name          string
	Email         string
	PasswordHash  []byte
	Role          UserRole
	Active        bool
	LoginAttempts int
	LockoutUntil  *time.Time
	LastLoginAt   *time.Time
	LastLoginIP   string

	VerifyTokenHash   []byte
	VerifyTokenExpiry *time.Time
	ResetTokenHash    []byte
	ResetTokenExpiry  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Locked reports whether the account is currently under lockout.
func (u User) Locked(now time.Time) bool {
	return u.LockoutUntil != nil && u.LockoutUntil.After(now)
}

// RefreshToken is one long-lived opaque credential held by a user.
// The token string itself is never stored; only its SHA-256 hash is.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash []byte
	TokenID   string // jti of the access token issued alongside
	UserAgent string
	IPAddress string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Valid reports whether the token may still be exchanged.
func (t RefreshToken) Valid(now time.Time) bool {
	return t.ExpiresAt.After(now)
}
