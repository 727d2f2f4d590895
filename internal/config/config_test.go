package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTP.Port)

	assert.Equal(t, 15*time.Minute, cfg.Security.AccessTokenTTL)
	assert.Equal(t, 720*time.Hour, cfg.Security.RefreshTokenTTL)
	assert.Equal(t, 2160*time.Hour, cfg.Security.RememberMeTTL)
	assert.Equal(t, 2, cfg.Security.MinPasswordScore)
	assert.Equal(t, 5, cfg.Security.MaxLoginAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Security.LockoutDuration)

	assert.Equal(t, 10, cfg.RateLimit.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.Window)

	assert.Equal(t, time.Hour, cfg.Cleanup.Interval)

	// No secret ships as a default; deployments must provide one.
	assert.Empty(t, cfg.Security.JWTSecret)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WAYFARER_ENVIRONMENT", "production")
	t.Setenv("WAYFARER_SECURITY_MAXLOGINATTEMPTS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 3, cfg.Security.MaxLoginAttempts)
}
