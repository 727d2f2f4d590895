package repository

import (
	"context"
	"time"

	"wayfarer/api/internal/models"
)

type EventRepository struct {
	db      DB
	timeout time.Duration
}

func NewEventRepository(db DB, queryTimeout time.Duration) *EventRepository {
	return &EventRepository{db: db, timeout: opTimeout(queryTimeout)}
}

func (r *EventRepository) Insert(ctx context.Context, event models.SecurityEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO security_events (
			id, user_id, event_type, ip_address, user_agent, details, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.Exec(ctx, query,
		event.ID,
		event.UserID,
		event.Type,
		event.IPAddress,
		event.UserAgent,
		event.Details,
		createdAt,
	)
	if err != nil {
		return storeErr("insert security event", err)
	}
	return nil
}

// List returns events newest first, optionally scoped to one user by
// passing a non-empty userID.
func (r *EventRepository) List(ctx context.Context, userID string, limit int) ([]models.SecurityEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, user_id, event_type, ip_address, user_agent, details, created_at
		FROM security_events
	`
	args := []any{limit}
	if userID != "" {
		query += ` WHERE user_id = $2`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list security events", err)
	}
	defer rows.Close()

	var events []models.SecurityEvent
	for rows.Next() {
		var event models.SecurityEvent
		if err := rows.Scan(
			&event.ID,
			&event.UserID,
			&event.Type,
			&event.IPAddress,
			&event.UserAgent,
			&event.Details,
			&event.CreatedAt,
		); err != nil {
			return nil, storeErr("scan security event", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
