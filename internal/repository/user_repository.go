package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"wayfarer/api/internal/models"
)

const userColumns = `
	id, name, email, password_hash, role, active,
	login_attempts, lockout_until, last_login_at, last_login_ip,
	verify_token_hash, verify_token_expiry, reset_token_hash, reset_token_expiry,
	created_at, updated_at`

type UserRepository struct {
	db      DB
	timeout time.Duration
}

func NewUserRepository(db DB, queryTimeout time.Duration) *UserRepository {
	return &UserRepository{db: db, timeout: opTimeout(queryTimeout)}
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.Active,
		&user.LoginAttempts,
		&user.LockoutUntil,
		&user.LastLoginAt,
		&user.LastLoginIP,
		&user.VerifyTokenHash,
		&user.VerifyTokenExpiry,
		&user.ResetTokenHash,
		&user.ResetTokenExpiry,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO users (
			id, name, email, password_hash, role, active,
			login_attempts, verify_token_hash, verify_token_expiry,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, 0, $7, $8, NOW(), NOW()
		)
	`

	_, err := r.db.Exec(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Active,
		user.VerifyTokenHash,
		user.VerifyTokenExpiry,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return storeErr("insert user", err)
	}
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, storeErr("find user by email", err)
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, storeErr("get user by id", err)
	}
	return user, nil
}

// IncrementLoginAttempts bumps the failure counter in a single
// statement and returns the new value. Concurrent failed attempts for
// the same account never lose increments.
func (r *UserRepository) IncrementLoginAttempts(ctx context.Context, email string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		UPDATE users
		SET login_attempts = login_attempts + 1, updated_at = NOW()
		WHERE email = $1
		RETURNING login_attempts
	`

	var attempts int
	if err := r.db.QueryRow(ctx, query, email).Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, storeErr("increment login attempts", err)
	}
	return attempts, nil
}

func (r *UserRepository) LockAccount(ctx context.Context, email string, until time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		UPDATE users SET lockout_until = $2, updated_at = NOW() WHERE email = $1
	`
	cmd, err := r.db.Exec(ctx, query, email, until)
	if err != nil {
		return storeErr("lock account", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) ResetLoginAttempts(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		UPDATE users
		SET login_attempts = 0, lockout_until = NULL, updated_at = NOW()
		WHERE email = $1
	`
	cmd, err := r.db.Exec(ctx, query, email)
	if err != nil {
		return storeErr("reset login attempts", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) RecordLogin(ctx context.Context, id string, ip string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		UPDATE users
		SET last_login_at = $2, last_login_ip = $3, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, at, ip); err != nil {
		return storeErr("record login", err)
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash []byte) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1
	`
	cmd, err := r.db.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return storeErr("update password", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) SetVerifyToken(ctx context.Context, id string, tokenHash []byte, expiry time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		UPDATE users
		SET verify_token_hash = $2, verify_token_expiry = $3, updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.db.Exec(ctx, query, id, tokenHash, expiry)
	if err != nil {
		return storeErr("set verify token", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ActivateByVerifyToken flips the account active and consumes the
// verification token in one statement.
func (r *UserRepository) ActivateByVerifyToken(ctx context.Context, tokenHash []byte, now time.Time) (models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE users
		SET active = TRUE, verify_token_hash = NULL, verify_token_expiry = NULL, updated_at = NOW()
		WHERE verify_token_hash = $1 AND verify_token_expiry > $2
		RETURNING` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query, tokenHash, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, storeErr("activate by verify token", err)
	}
	return user, nil
}

func (r *UserRepository) SetResetToken(ctx context.Context, id string, tokenHash []byte, expiry time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		UPDATE users
		SET reset_token_hash = $2, reset_token_expiry = $3, updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.db.Exec(ctx, query, id, tokenHash, expiry)
	if err != nil {
		return storeErr("set reset token", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) FindByResetToken(ctx context.Context, tokenHash []byte, now time.Time) (models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT` + userColumns + `
		FROM users
		WHERE reset_token_hash = $1 AND reset_token_expiry > $2`

	user, err := scanUser(r.db.QueryRow(ctx, query, tokenHash, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, storeErr("find user by reset token", err)
	}
	return user, nil
}

func (r *UserRepository) ClearResetToken(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		UPDATE users
		SET reset_token_hash = NULL, reset_token_expiry = NULL, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return storeErr("clear reset token", err)
	}
	return nil
}

func (r *UserRepository) AddRefreshToken(ctx context.Context, token models.RefreshToken) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO refresh_tokens (
			id, user_id, token_hash, token_id, user_agent, ip_address, expires_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, NOW()
		)
	`
	_, err := r.db.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.TokenID,
		token.UserAgent,
		token.IPAddress,
		token.ExpiresAt,
	)
	if err != nil {
		return storeErr("insert refresh token", err)
	}
	return nil
}

func (r *UserRepository) RemoveRefreshToken(ctx context.Context, tokenHash []byte) (models.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		DELETE FROM refresh_tokens
		WHERE token_hash = $1
		RETURNING id, user_id, token_hash, token_id, user_agent, ip_address, expires_at, created_at
	`

	var token models.RefreshToken
	err := r.db.QueryRow(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.TokenID,
		&token.UserAgent,
		&token.IPAddress,
		&token.ExpiresAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RefreshToken{}, ErrTokenNotFound
		}
		return models.RefreshToken{}, storeErr("remove refresh token", err)
	}
	return token, nil
}

func (r *UserRepository) RemoveAllRefreshTokens(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `DELETE FROM refresh_tokens WHERE user_id = $1`
	cmd, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, storeErr("remove all refresh tokens", err)
	}
	return cmd.RowsAffected(), nil
}

// FindUserByRefreshToken resolves an opaque refresh token to its owner.
// Expired tokens never resolve, even while still physically present
// before the next cleanup sweep.
func (r *UserRepository) FindUserByRefreshToken(ctx context.Context, tokenHash []byte, now time.Time) (models.User, models.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT
			u.id, u.name, u.email, u.password_hash, u.role, u.active,
			u.login_attempts, u.lockout_until, u.last_login_at, u.last_login_ip,
			u.verify_token_hash, u.verify_token_expiry, u.reset_token_hash, u.reset_token_expiry,
			u.created_at, u.updated_at,
			t.id, t.user_id, t.token_hash, t.token_id, t.user_agent, t.ip_address, t.expires_at, t.created_at
		FROM refresh_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1 AND t.expires_at > $2
	`

	var (
		user  models.User
		token models.RefreshToken
	)
	err := r.db.QueryRow(ctx, query, tokenHash, now).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.Active,
		&user.LoginAttempts,
		&user.LockoutUntil,
		&user.LastLoginAt,
		&user.LastLoginIP,
		&user.VerifyTokenHash,
		&user.VerifyTokenExpiry,
		&user.ResetTokenHash,
		&user.ResetTokenExpiry,
		&user.CreatedAt,
		&user.UpdatedAt,
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.TokenID,
		&token.UserAgent,
		&token.IPAddress,
		&token.ExpiresAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, models.RefreshToken{}, ErrTokenNotFound
		}
		return models.User{}, models.RefreshToken{}, storeErr("find user by refresh token", err)
	}
	return user, token, nil
}

func (r *UserRepository) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `DELETE FROM refresh_tokens WHERE expires_at < $1`
	cmd, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, storeErr("delete expired refresh tokens", err)
	}
	return cmd.RowsAffected(), nil
}
