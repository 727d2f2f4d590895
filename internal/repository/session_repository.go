package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"wayfarer/api/internal/models"
)

const sessionColumns = `
	id, user_id, provider, token_id, issued_at, expires_at, user_agent, ip_address, created_at`

type SessionRepository struct {
	db      DB
	timeout time.Duration
}

func NewSessionRepository(db DB, queryTimeout time.Duration) *SessionRepository {
	return &SessionRepository{db: db, timeout: opTimeout(queryTimeout)}
}

func scanSession(row pgx.Row) (models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Provider,
		&session.TokenID,
		&session.IssuedAt,
		&session.ExpiresAt,
		&session.UserAgent,
		&session.IPAddress,
		&session.CreatedAt,
	)
	return session, err
}

func (r *SessionRepository) Create(ctx context.Context, session models.Session) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO sessions (
			id, user_id, provider, token_id, issued_at, expires_at, user_agent, ip_address, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW()
		)
	`

	_, err := r.db.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.Provider,
		session.TokenID,
		session.IssuedAt,
		session.ExpiresAt,
		session.UserAgent,
		session.IPAddress,
	)
	if err != nil {
		return storeErr("insert session", err)
	}
	return nil
}

func (r *SessionRepository) GetByTokenID(ctx context.Context, tokenID string) (models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT` + sessionColumns + ` FROM sessions WHERE token_id = $1`

	session, err := scanSession(r.db.QueryRow(ctx, query, tokenID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, storeErr("get session by token id", err)
	}
	return session, nil
}

// ListActiveByUser returns the user's live sessions, most recent first.
// Expired sessions awaiting cleanup are excluded.
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY issued_at DESC`

	rows, err := r.db.Query(ctx, query, userID, now)
	if err != nil {
		return nil, storeErr("list sessions", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, storeErr("scan session", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) DeleteByTokenID(ctx context.Context, tokenID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `DELETE FROM sessions WHERE token_id = $1`
	cmd, err := r.db.Exec(ctx, query, tokenID)
	if err != nil {
		return storeErr("delete session", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `DELETE FROM sessions WHERE user_id = $1`
	cmd, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, storeErr("delete sessions by user", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `DELETE FROM sessions WHERE expires_at < $1`
	cmd, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, storeErr("delete expired sessions", err)
	}
	return cmd.RowsAffected(), nil
}
