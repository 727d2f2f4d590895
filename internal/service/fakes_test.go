package service

import (
	"bytes"
	"context"
	"sync"
	"time"

	"wayfarer/api/internal/models"
	"wayfarer/api/internal/repository"
)

// In-memory store fakes mirroring the repository semantics, so the
// full login/lockout/refresh flows run without Postgres.

type memUserStore struct {
	mu     sync.Mutex
	users  map[string]*models.User // by id
	tokens []models.RefreshToken
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*models.User)}
}

func (s *memUserStore) byEmail(email string) *models.User {
	for _, u := range s.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (s *memUserStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byEmail(user.Email) != nil {
		return repository.ErrDuplicateEmail
	}
	u := user
	s.users[user.ID] = &u
	return nil
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.byEmail(email); u != nil {
		return *u, nil
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *memUserStore) GetByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return *u, nil
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *memUserStore) IncrementLoginAttempts(_ context.Context, email string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byEmail(email)
	if u == nil {
		return 0, repository.ErrUserNotFound
	}
	u.LoginAttempts++
	return u.LoginAttempts, nil
}

func (s *memUserStore) LockAccount(_ context.Context, email string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byEmail(email)
	if u == nil {
		return repository.ErrUserNotFound
	}
	u.LockoutUntil = &until
	return nil
}

func (s *memUserStore) ResetLoginAttempts(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byEmail(email)
	if u == nil {
		return repository.ErrUserNotFound
	}
	u.LoginAttempts = 0
	u.LockoutUntil = nil
	return nil
}

func (s *memUserStore) RecordLogin(_ context.Context, id string, ip string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.LastLoginAt = &at
		u.LastLoginIP = ip
	}
	return nil
}

func (s *memUserStore) UpdatePassword(_ context.Context, id string, passwordHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *memUserStore) SetVerifyToken(_ context.Context, id string, tokenHash []byte, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.VerifyTokenHash = tokenHash
	u.VerifyTokenExpiry = &expiry
	return nil
}

func (s *memUserStore) ActivateByVerifyToken(_ context.Context, tokenHash []byte, now time.Time) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if bytes.Equal(u.VerifyTokenHash, tokenHash) && u.VerifyTokenExpiry != nil && u.VerifyTokenExpiry.After(now) {
			u.Active = true
			u.VerifyTokenHash = nil
			u.VerifyTokenExpiry = nil
			return *u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *memUserStore) SetResetToken(_ context.Context, id string, tokenHash []byte, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.ResetTokenHash = tokenHash
	u.ResetTokenExpiry = &expiry
	return nil
}

func (s *memUserStore) FindByResetToken(_ context.Context, tokenHash []byte, now time.Time) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if bytes.Equal(u.ResetTokenHash, tokenHash) && u.ResetTokenExpiry != nil && u.ResetTokenExpiry.After(now) {
			return *u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *memUserStore) ClearResetToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.ResetTokenHash = nil
		u.ResetTokenExpiry = nil
	}
	return nil
}

func (s *memUserStore) AddRefreshToken(_ context.Context, token models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, token)
	return nil
}

func (s *memUserStore) RemoveRefreshToken(_ context.Context, tokenHash []byte) (models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, token := range s.tokens {
		if bytes.Equal(token.TokenHash, tokenHash) {
			s.tokens = append(s.tokens[:i], s.tokens[i+1:]...)
			return token, nil
		}
	}
	return models.RefreshToken{}, repository.ErrTokenNotFound
}

func (s *memUserStore) RemoveAllRefreshTokens(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []models.RefreshToken
	var removed int64
	for _, token := range s.tokens {
		if token.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, token)
	}
	s.tokens = kept
	return removed, nil
}

func (s *memUserStore) FindUserByRefreshToken(_ context.Context, tokenHash []byte, now time.Time) (models.User, models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range s.tokens {
		if bytes.Equal(token.TokenHash, tokenHash) && token.ExpiresAt.After(now) {
			if u, ok := s.users[token.UserID]; ok {
				return *u, token, nil
			}
		}
	}
	return models.User{}, models.RefreshToken{}, repository.ErrTokenNotFound
}

func (s *memUserStore) DeleteExpiredRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []models.RefreshToken
	var removed int64
	for _, token := range s.tokens {
		if token.ExpiresAt.Before(now) {
			removed++
			continue
		}
		kept = append(kept, token)
	}
	s.tokens = kept
	return removed, nil
}

func (s *memUserStore) tokenCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, token := range s.tokens {
		if token.UserID == userID {
			count++
		}
	}
	return count
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session // by token id
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]models.Session)}
}

func (s *memSessionStore) Create(_ context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.TokenID] = session
	return nil
}

func (s *memSessionStore) GetByTokenID(_ context.Context, tokenID string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[tokenID]; ok {
		return session, nil
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (s *memSessionStore) ListActiveByUser(_ context.Context, userID string, now time.Time) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, session := range s.sessions {
		if session.UserID == userID && session.ExpiresAt.After(now) {
			out = append(out, session)
		}
	}
	return out, nil
}

func (s *memSessionStore) DeleteByTokenID(_ context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[tokenID]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(s.sessions, tokenID)
	return nil
}

func (s *memSessionStore) DeleteByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for tokenID, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, tokenID)
			removed++
		}
	}
	return removed, nil
}

func (s *memSessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for tokenID, session := range s.sessions {
		if session.ExpiresAt.Before(now) {
			delete(s.sessions, tokenID)
			removed++
		}
	}
	return removed, nil
}

type memRateStore struct {
	mu      sync.Mutex
	records map[string]models.RateLimitRecord
}

func newMemRateStore() *memRateStore {
	return &memRateStore{records: make(map[string]models.RateLimitRecord)}
}

func (s *memRateStore) Get(_ context.Context, identifier string) (models.RateLimitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[identifier]; ok {
		return record, nil
	}
	return models.RateLimitRecord{}, repository.ErrRecordNotFound
}

func (s *memRateStore) RecordFailure(_ context.Context, identifier string, now time.Time, resetTime time.Time) (models.RateLimitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[identifier]
	if !ok || record.ResetTime.Before(now) {
		record = models.RateLimitRecord{Identifier: identifier, Attempts: 1, LastAttempt: now, ResetTime: resetTime}
	} else {
		record.Attempts++
		record.LastAttempt = now
	}
	s.records[identifier] = record
	return record, nil
}

func (s *memRateStore) Delete(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identifier)
	return nil
}

func (s *memRateStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for identifier, record := range s.records {
		if record.ResetTime.Before(now) {
			delete(s.records, identifier)
			removed++
		}
	}
	return removed, nil
}

type memEventStore struct {
	mu     sync.Mutex
	events []models.SecurityEvent
}

func (s *memEventStore) Insert(_ context.Context, event models.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memEventStore) List(_ context.Context, userID string, limit int) ([]models.SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SecurityEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		event := s.events[i]
		if userID != "" && (event.UserID == nil || *event.UserID != userID) {
			continue
		}
		out = append(out, event)
	}
	return out, nil
}
