package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"wayfarer/api/internal/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrTokenNotFound   = errors.New("refresh token not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrRecordNotFound  = errors.New("rate limit record not found")
	ErrDuplicateEmail  = errors.New("email already registered")

	// ErrStoreUnavailable wraps timeouts and connection failures so the
	// service layer can report a generic infrastructure failure instead
	// of leaking store detail.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// DB is the subset of pgxpool.Pool the repositories use. pgxmock
// satisfies it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserStore is the credential store: user records plus their embedded
// refresh tokens.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	IncrementLoginAttempts(ctx context.Context, email string) (int, error)
	LockAccount(ctx context.Context, email string, until time.Time) error
	ResetLoginAttempts(ctx context.Context, email string) error
	RecordLogin(ctx context.Context, id string, ip string, at time.Time) error
	UpdatePassword(ctx context.Context, id string, passwordHash []byte) error

	SetVerifyToken(ctx context.Context, id string, tokenHash []byte, expiry time.Time) error
	ActivateByVerifyToken(ctx context.Context, tokenHash []byte, now time.Time) (models.User, error)
	SetResetToken(ctx context.Context, id string, tokenHash []byte, expiry time.Time) error
	FindByResetToken(ctx context.Context, tokenHash []byte, now time.Time) (models.User, error)
	ClearResetToken(ctx context.Context, id string) error

	AddRefreshToken(ctx context.Context, token models.RefreshToken) error
	RemoveRefreshToken(ctx context.Context, tokenHash []byte) (models.RefreshToken, error)
	RemoveAllRefreshTokens(ctx context.Context, userID string) (int64, error)
	FindUserByRefreshToken(ctx context.Context, tokenHash []byte, now time.Time) (models.User, models.RefreshToken, error)
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

// SessionStore is the session registry.
type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	GetByTokenID(ctx context.Context, tokenID string) (models.Session, error)
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]models.Session, error)
	DeleteByTokenID(ctx context.Context, tokenID string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RateLimitStore persists per-identifier attempt counters.
type RateLimitStore interface {
	Get(ctx context.Context, identifier string) (models.RateLimitRecord, error)
	RecordFailure(ctx context.Context, identifier string, now time.Time, resetTime time.Time) (models.RateLimitRecord, error)
	Delete(ctx context.Context, identifier string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// EventStore is the append-only security event log.
type EventStore interface {
	Insert(ctx context.Context, event models.SecurityEvent) error
	List(ctx context.Context, userID string, limit int) ([]models.SecurityEvent, error)
}

const defaultQueryTimeout = 5 * time.Second

func opTimeout(queryTimeout time.Duration) time.Duration {
	if queryTimeout <= 0 {
		return defaultQueryTimeout
	}
	return queryTimeout
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "23505")
}

// storeErr normalizes infrastructure failures (timeouts, dead
// connections) under ErrStoreUnavailable.
func storeErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "08") { // connection exception class
		return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
