package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"wayfarer/api/internal/models"
)

type RateLimitRepository struct {
	db      DB
	timeout time.Duration
}

func NewRateLimitRepository(db DB, queryTimeout time.Duration) *RateLimitRepository {
	return &RateLimitRepository{db: db, timeout: opTimeout(queryTimeout)}
}

func (r *RateLimitRepository) Get(ctx context.Context, identifier string) (models.RateLimitRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT identifier, attempts, last_attempt, reset_time
		FROM rate_limits
		WHERE identifier = $1
	`

	var record models.RateLimitRecord
	err := r.db.QueryRow(ctx, query, identifier).Scan(
		&record.Identifier,
		&record.Attempts,
		&record.LastAttempt,
		&record.ResetTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RateLimitRecord{}, ErrRecordNotFound
		}
		return models.RateLimitRecord{}, storeErr("get rate limit record", err)
	}
	return record, nil
}

// RecordFailure upserts the attempt counter in one statement. A record
// whose window already lapsed restarts at one attempt with a fresh
// reset time; otherwise the existing reset time is kept.
func (r *RateLimitRepository) RecordFailure(ctx context.Context, identifier string, now time.Time, resetTime time.Time) (models.RateLimitRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO rate_limits (identifier, attempts, last_attempt, reset_time)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (identifier) DO UPDATE SET
			attempts     = CASE WHEN rate_limits.reset_time < $2 THEN 1 ELSE rate_limits.attempts + 1 END,
			reset_time   = CASE WHEN rate_limits.reset_time < $2 THEN $3 ELSE rate_limits.reset_time END,
			last_attempt = $2
		RETURNING identifier, attempts, last_attempt, reset_time
	`

	var record models.RateLimitRecord
	err := r.db.QueryRow(ctx, query, identifier, now, resetTime).Scan(
		&record.Identifier,
		&record.Attempts,
		&record.LastAttempt,
		&record.ResetTime,
	)
	if err != nil {
		return models.RateLimitRecord{}, storeErr("record rate limit failure", err)
	}
	return record, nil
}

func (r *RateLimitRepository) Delete(ctx context.Context, identifier string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `DELETE FROM rate_limits WHERE identifier = $1`
	if _, err := r.db.Exec(ctx, query, identifier); err != nil {
		return storeErr("delete rate limit record", err)
	}
	return nil
}

func (r *RateLimitRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `DELETE FROM rate_limits WHERE reset_time < $1`
	cmd, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, storeErr("delete expired rate limit records", err)
	}
	return cmd.RowsAffected(), nil
}
