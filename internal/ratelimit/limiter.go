// Package ratelimit throttles authentication attempts per identifier
// (an email address or a client IP) inside a rolling window. It is
// independent of account lockout: both can apply to one login attempt.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"wayfarer/api/internal/models"
	"wayfarer/api/internal/repository"
)

// Decision is the outcome of consulting the limiter for one identifier.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

type Limiter struct {
	store  repository.RateLimitStore
	max    int
	window time.Duration
}

func New(store repository.RateLimitStore, maxAttempts int, window time.Duration) *Limiter {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &Limiter{store: store, max: maxAttempts, window: window}
}

// Check reads the current counter without mutating it.
func (l *Limiter) Check(ctx context.Context, identifier string) (Decision, error) {
	record, err := l.store.Get(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return Decision{Allowed: true, Remaining: l.max}, nil
		}
		return Decision{}, err
	}

	return l.decide(record, time.Now()), nil
}

// RecordFailure counts one failed attempt and reports the state after
// counting it.
func (l *Limiter) RecordFailure(ctx context.Context, identifier string) (Decision, error) {
	now := time.Now()
	record, err := l.store.RecordFailure(ctx, identifier, now, now.Add(l.window))
	if err != nil {
		return Decision{}, err
	}
	return l.decide(record, now), nil
}

// Reset drops the counter, on successful login or by operator action.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	return l.store.Delete(ctx, identifier)
}

// PurgeExpired removes records whose window has passed.
func (l *Limiter) PurgeExpired(ctx context.Context) (int64, error) {
	return l.store.DeleteExpired(ctx, time.Now())
}

func (l *Limiter) decide(record models.RateLimitRecord, now time.Time) Decision {
	if record.ResetTime.Before(now) {
		return Decision{Allowed: true, Remaining: l.max, ResetTime: record.ResetTime}
	}

	remaining := l.max - record.Attempts
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   record.Attempts < l.max,
		Remaining: remaining,
		ResetTime: record.ResetTime,
	}
}
