package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoSecret means the signing secret was never configured. This is
	// a deployment fault, not a caller fault.
	ErrNoSecret = errors.New("jwt signing secret not configured")

	// ErrTokenExpired means the token was well formed and correctly
	// signed but its expiry has passed. Callers typically react by
	// attempting a refresh.
	ErrTokenExpired = errors.New("access token expired")

	// ErrTokenInvalid covers every other verification failure: bad
	// signature, wrong algorithm, malformed claims.
	ErrTokenInvalid = errors.New("access token invalid")
)

type AccessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// IssueAccessToken signs a short-lived stateless credential. tokenID
// becomes the jti claim and correlates the token to its session record.
func IssueAccessToken(secret, userID, email, role, tokenID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}

	now := time.Now()
	claims := AccessClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken validates signature, algorithm and expiry. Expiry is
// reported as ErrTokenExpired so callers can distinguish "refresh and
// retry" from "force re-login".
func ParseAccessToken(tokenStr, secret string) (*AccessClaims, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}

	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// NewOpaqueToken generates a cryptographically random URL-safe string.
// Opaque tokens carry no claims; they are lookup keys into the store,
// which is what makes them revocable.
func NewOpaqueToken(bytes int) (string, error) {
	if bytes <= 0 {
		bytes = 32
	}
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate opaque token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashOpaqueToken derives the lookup key stored in place of the raw
// token, so a database leak does not expose usable credentials.
func HashOpaqueToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}
