package models

import "time"

type SecurityEventType string

const (
	EventLoginSuccess      SecurityEventType = "LOGIN_SUCCESS"
	EventLoginFailed       SecurityEventType = "LOGIN_FAILED"
	EventAccountLocked     SecurityEventType = "ACCOUNT_LOCKED"
	EventTokenRefresh      SecurityEventType = "TOKEN_REFRESH"
	EventPermissionDenied  SecurityEventType = "PERMISSION_DENIED"
	EventRateLimitExceeded SecurityEventType = "RATE_LIMIT_EXCEEDED"
)

// SecurityEvent is one append-only audit entry. Events are never
// updated after insertion.
type SecurityEvent struct {
	ID        string
	UserID    *string
	Type      SecurityEventType
	IPAddress string
	UserAgent string
	Details   string
	CreatedAt time.Time
}
