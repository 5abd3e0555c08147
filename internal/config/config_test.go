package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 80, cfg.HTTPPort)
	assert.Equal(t, 9999, cfg.MatchmakerPort)
	assert.Equal(t, 3001, cfg.AdminDashboardPort)
	assert.False(t, cfg.UseHTTPS)
	assert.True(t, cfg.EnableWebserver)
	assert.True(t, cfg.LogToFile)
	assert.Equal(t, 15*time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 100, cfg.RateLimitMaxRequests)
	assert.Equal(t, 30*time.Minute, cfg.SessionTimeout)
	assert.Equal(t, 30*time.Second, cfg.HealthCheckInterval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("SESSION_TIMEOUT_MS", "60000")
	t.Setenv("ENABLE_WEBSERVER", "false")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg := Load()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, time.Minute, cfg.SessionTimeout)
	assert.False(t, cfg.EnableWebserver)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
}

func TestValidateProductionRequiresJWTSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")

	cfg := Load()
	require.Error(t, cfg.Validate())

	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	cfg = Load()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadPorts(t *testing.T) {
	t.Setenv("HTTP_PORT", "-1")
	cfg := Load()
	assert.Error(t, cfg.Validate())
}

func TestValidateHTTPSRequiresCertPair(t *testing.T) {
	t.Setenv("USE_HTTPS", "true")
	cfg := Load()
	require.Error(t, cfg.Validate())

	t.Setenv("TLS_CERT_FILE", "/etc/tls/cert.pem")
	t.Setenv("TLS_KEY_FILE", "/etc/tls/key.pem")
	cfg = Load()
	assert.NoError(t, cfg.Validate())
}
