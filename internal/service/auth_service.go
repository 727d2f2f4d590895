package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wayfarer/api/internal/audit"
	"wayfarer/api/internal/cache"
	"wayfarer/api/internal/config"
	"wayfarer/api/internal/ids"
	"wayfarer/api/internal/models"
	"wayfarer/api/internal/ratelimit"
	"wayfarer/api/internal/repository"
	"wayfarer/api/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountInactive    = errors.New("account not verified")
	ErrRateLimited        = errors.New("too many attempts")
	ErrWeakPassword       = errors.New("password too weak")
)

const (
	verifyTokenTTL = 24 * time.Hour
	resetTokenTTL  = time.Hour

	providerCredentials = "credentials"
)

type AuthService struct {
	users      repository.UserStore
	sessions   repository.SessionStore
	limiter    *ratelimit.Limiter
	audit      *audit.Recorder
	cache      *cache.SessionCache
	cfg        *config.AppConfig
	hashParams security.Argon2Params
	log        zerolog.Logger
}

func NewAuthService(
	users repository.UserStore,
	sessions repository.SessionStore,
	limiter *ratelimit.Limiter,
	auditRecorder *audit.Recorder,
	sessionCache *cache.SessionCache,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		sessions:   sessions,
		limiter:    limiter,
		audit:      auditRecorder,
		cache:      sessionCache,
		cfg:        cfg,
		hashParams: security.ParamsForEnvironment(cfg.Environment),
		log:        log,
	}
}

type RegisterInput struct {
	Name      string
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// RegisterResult carries the new inactive user and the one-time email
// verification token. Delivering the token is the mailer's job; this
// service never sends email.
type RegisterResult struct {
	User        models.User
	VerifyToken string
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (RegisterResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return RegisterResult{}, fmt.Errorf("%w: email and password required", ErrInvalidCredentials)
	}

	strength := security.ScorePassword(input.Password, input.Name, email)
	if strength.Score < s.cfg.Security.MinPasswordScore {
		return RegisterResult{}, fmt.Errorf("%w: score %d of %d required",
			ErrWeakPassword, strength.Score, s.cfg.Security.MinPasswordScore)
	}

	passwordHash, err := security.HashPassword(input.Password, s.hashParams)
	if err != nil {
		return RegisterResult{}, err
	}

	verifyToken, err := security.NewOpaqueToken(32)
	if err != nil {
		return RegisterResult{}, err
	}
	verifyExpiry := time.Now().Add(verifyTokenTTL)

	user := models.User{
		ID:                ids.New(),
		Name:              strings.TrimSpace(input.Name),
		Email:             email,
		PasswordHash:      passwordHash,
		Role:              models.UserRoleUser,
		Active:            false,
		VerifyTokenHash:   security.HashOpaqueToken(verifyToken),
		VerifyTokenExpiry: &verifyExpiry,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return RegisterResult{}, err
	}

	return RegisterResult{User: user, VerifyToken: verifyToken}, nil
}

// VerifyEmail activates the account that owns the verification token.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (models.User, error) {
	user, err := s.users.ActivateByVerifyToken(ctx, security.HashOpaqueToken(token), time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, security.ErrTokenInvalid
		}
		return models.User{}, err
	}
	return user, nil
}

type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
	IPAddress  string
	UserAgent  string
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         models.User
}

// Login runs the full credential flow: rate limit, lockout, activation
// and password checks, then token issuance with a session record. The
// audit trail records the outcome either way and never fails the call.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (TokenPair, error) {
	email := normalizeEmail(input.Email)

	for _, identifier := range s.identifiers(email, input.IPAddress) {
		decision, err := s.limiter.Check(ctx, identifier)
		if err != nil {
			return TokenPair{}, err
		}
		if !decision.Allowed {
			s.record(models.EventRateLimitExceeded, nil, input, "identifier "+identifier)
			return TokenPair{}, fmt.Errorf("%w: retry after %s",
				ErrRateLimited, decision.ResetTime.Format(time.RFC3339))
		}
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.countFailure(ctx, email, input, nil)
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}

	now := time.Now()
	if user.Locked(now) {
		s.record(models.EventLoginFailed, &user.ID, input, "attempt while locked")
		return TokenPair{}, fmt.Errorf("%w until %s", ErrAccountLocked, user.LockoutUntil.Format(time.RFC3339))
	}

	if !user.Active {
		s.record(models.EventLoginFailed, &user.ID, input, "account not verified")
		return TokenPair{}, ErrAccountInactive
	}

	if !security.VerifyPassword(input.Password, user.PasswordHash) {
		s.countFailure(ctx, email, input, &user)
		return TokenPair{}, ErrInvalidCredentials
	}

	if err := s.users.ResetLoginAttempts(ctx, email); err != nil {
		return TokenPair{}, err
	}
	for _, identifier := range s.identifiers(email, input.IPAddress) {
		if err := s.limiter.Reset(ctx, identifier); err != nil {
			s.log.Warn().Err(err).Str("identifier", identifier).Msg("rate limit reset failed")
		}
	}
	if err := s.users.RecordLogin(ctx, user.ID, input.IPAddress, now); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("record login failed")
	}

	pair, err := s.issueTokenPair(ctx, user, input.RememberMe, input.IPAddress, input.UserAgent)
	if err != nil {
		return TokenPair{}, err
	}

	s.record(models.EventLoginSuccess, &user.ID, input, "")
	return pair, nil
}

// countFailure does the bookkeeping for one failed attempt: rate limit
// counters for both identifiers, the per-account attempt counter, and
// lockout once the threshold is crossed.
func (s *AuthService) countFailure(ctx context.Context, email string, input LoginInput, user *models.User) {
	for _, identifier := range s.identifiers(email, input.IPAddress) {
		if _, err := s.limiter.RecordFailure(ctx, identifier); err != nil {
			s.log.Warn().Err(err).Str("identifier", identifier).Msg("rate limit record failed")
		}
	}

	if user == nil {
		s.record(models.EventLoginFailed, nil, input, "unknown email")
		return
	}

	s.record(models.EventLoginFailed, &user.ID, input, "wrong password")

	attempts, err := s.users.IncrementLoginAttempts(ctx, email)
	if err != nil {
		s.log.Warn().Err(err).Str("email", email).Msg("increment login attempts failed")
		return
	}

	if attempts >= s.cfg.Security.MaxLoginAttempts {
		until := time.Now().Add(s.cfg.Security.LockoutDuration)
		if err := s.users.LockAccount(ctx, email, until); err != nil {
			s.log.Error().Err(err).Str("email", email).Msg("lock account failed")
			return
		}
		s.record(models.EventAccountLocked, &user.ID, input,
			fmt.Sprintf("%d failed attempts", attempts))
	}
}

// issueTokenPair is the sole issuance path used at login and refresh
// time: one stateless access token, one opaque refresh token, and the
// session record that makes the pair revocable.
func (s *AuthService) issueTokenPair(ctx context.Context, user models.User, rememberMe bool, ip, userAgent string) (TokenPair, error) {
	now := time.Now()
	tokenID := ids.New()

	accessToken, err := security.IssueAccessToken(
		s.cfg.Security.JWTSecret,
		user.ID,
		user.Email,
		string(user.Role),
		tokenID,
		s.cfg.Security.AccessTokenTTL,
	)
	if err != nil {
		return TokenPair{}, err
	}

	refreshTTL := s.cfg.Security.RefreshTokenTTL
	if rememberMe {
		refreshTTL = s.cfg.Security.RememberMeTTL
	}

	refreshToken, err := security.NewOpaqueToken(32)
	if err != nil {
		return TokenPair{}, err
	}
	refreshExpiry := now.Add(refreshTTL)

	if err := s.users.AddRefreshToken(ctx, models.RefreshToken{
		ID:        ids.New(),
		UserID:    user.ID,
		TokenHash: security.HashOpaqueToken(refreshToken),
		TokenID:   tokenID,
		UserAgent: userAgent,
		IPAddress: ip,
		ExpiresAt: refreshExpiry,
	}); err != nil {
		return TokenPair{}, err
	}

	if err := s.sessions.Create(ctx, models.Session{
		ID:        ids.New(),
		UserID:    user.ID,
		Provider:  providerCredentials,
		TokenID:   tokenID,
		IssuedAt:  now,
		ExpiresAt: refreshExpiry,
		UserAgent: userAgent,
		IPAddress: ip,
	}); err != nil {
		return TokenPair{}, err
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, tokenID, user.ID); err != nil {
			s.log.Warn().Err(err).Msg("session cache put failed")
		}
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(s.cfg.Security.AccessTokenTTL),
		User:         user,
	}, nil
}

// Refresh rotates a refresh token: the presented token and its session
// are retired and a fresh pair is issued. An expired or unknown token
// fails with ErrTokenInvalid.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (TokenPair, error) {
	tokenHash := security.HashOpaqueToken(refreshToken)

	user, token, err := s.users.FindUserByRefreshToken(ctx, tokenHash, time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return TokenPair{}, security.ErrTokenInvalid
		}
		return TokenPair{}, err
	}

	if !user.Active {
		return TokenPair{}, ErrAccountInactive
	}

	if _, err := s.users.RemoveRefreshToken(ctx, tokenHash); err != nil && !errors.Is(err, repository.ErrTokenNotFound) {
		return TokenPair{}, err
	}
	if err := s.sessions.DeleteByTokenID(ctx, token.TokenID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		s.log.Warn().Err(err).Str("token_id", token.TokenID).Msg("retire session failed")
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, token.TokenID); err != nil {
			s.log.Warn().Err(err).Msg("session cache invalidate failed")
		}
	}

	pair, err := s.issueTokenPair(ctx, user, false, ip, userAgent)
	if err != nil {
		return TokenPair{}, err
	}

	s.audit.Record(models.SecurityEvent{
		UserID:    &user.ID,
		Type:      models.EventTokenRefresh,
		IPAddress: ip,
		UserAgent: userAgent,
	})
	return pair, nil
}

// Logout revokes one device: the refresh token is removed and its
// session deleted. Unknown tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	token, err := s.users.RemoveRefreshToken(ctx, security.HashOpaqueToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil
		}
		return err
	}

	if err := s.sessions.DeleteByTokenID(ctx, token.TokenID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, token.TokenID); err != nil {
			s.log.Warn().Err(err).Msg("session cache invalidate failed")
		}
	}
	return nil
}

// LogoutAll signs the user out everywhere: every refresh token and
// session is revoked immediately.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	sessions, err := s.sessions.ListActiveByUser(ctx, userID, time.Now())
	if err != nil {
		return err
	}

	if _, err := s.users.RemoveAllRefreshTokens(ctx, userID); err != nil {
		return err
	}
	if _, err := s.sessions.DeleteByUser(ctx, userID); err != nil {
		return err
	}

	if s.cache != nil && len(sessions) > 0 {
		tokenIDs := make([]string, len(sessions))
		for i, session := range sessions {
			tokenIDs[i] = session.TokenID
		}
		if err := s.cache.Invalidate(ctx, tokenIDs...); err != nil {
			s.log.Warn().Err(err).Msg("session cache invalidate failed")
		}
	}
	return nil
}

// ListSessions returns the user's live sessions for a "your devices"
// view.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	return s.sessions.ListActiveByUser(ctx, userID, time.Now())
}

// VerifyAccessToken is the stateless verification used by every
// protected route. Session liveness is checked separately by the auth
// middleware.
func (s *AuthService) VerifyAccessToken(tokenStr string) (*security.AccessClaims, error) {
	return security.ParseAccessToken(tokenStr, s.cfg.Security.JWTSecret)
}

// RequestPasswordReset issues a reset token for the account, when one
// exists. The empty result for unknown emails is deliberate: callers
// answer identically either way so the endpoint cannot be used to probe
// for accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil
		}
		return "", err
	}

	resetToken, err := security.NewOpaqueToken(32)
	if err != nil {
		return "", err
	}

	if err := s.users.SetResetToken(ctx, user.ID, security.HashOpaqueToken(resetToken), time.Now().Add(resetTokenTTL)); err != nil {
		return "", err
	}
	return resetToken, nil
}

// ResetPassword consumes a reset token, replaces the credential and
// signs the user out everywhere.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	user, err := s.users.FindByResetToken(ctx, security.HashOpaqueToken(token), time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return security.ErrTokenInvalid
		}
		return err
	}

	strength := security.ScorePassword(newPassword, user.Name, user.Email)
	if strength.Score < s.cfg.Security.MinPasswordScore {
		return fmt.Errorf("%w: score %d of %d required",
			ErrWeakPassword, strength.Score, s.cfg.Security.MinPasswordScore)
	}

	passwordHash, err := security.HashPassword(newPassword, s.hashParams)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return err
	}
	if err := s.users.ClearResetToken(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("clear reset token failed")
	}

	return s.LogoutAll(ctx, user.ID)
}

func (s *AuthService) identifiers(email, ip string) []string {
	identifiers := make([]string, 0, 2)
	if email != "" {
		identifiers = append(identifiers, "email:"+email)
	}
	if ip != "" {
		identifiers = append(identifiers, "ip:"+ip)
	}
	return identifiers
}

func (s *AuthService) record(eventType models.SecurityEventType, userID *string, input LoginInput, details string) {
	s.audit.Record(models.SecurityEvent{
		UserID:    userID,
		Type:      eventType,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Details:   details,
	})
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
