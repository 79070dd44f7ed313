package config

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("SESSION_SECRET", testSecret)
}

// TestPurpose: Validates environment defaults.
// Scope: Unit Test
// Security: Secure cookie and lockout defaults
// Expected: Only the required secrets need to be set; defaults match the documented values.
// Test Case ID: CFG-01
func TestConfig_Load_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "customer", cfg.App.Variant)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "staffgate_session", cfg.Session.CookieName)
	assert.True(t, cfg.Session.CookieHTTPOnly)
	assert.Equal(t, http.SameSiteLaxMode, cfg.Session.SameSite())
	assert.Equal(t, 24*time.Hour, cfg.Session.Lifetime)
	assert.Equal(t, 5*time.Second, cfg.Access.UpstreamTimeout)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 100, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 5, cfg.Security.LockoutMaxAttempts)
	assert.Equal(t, uint8(4), cfg.Security.Argon2Parallelism)
	assert.Equal(t, 1024, cfg.Audit.BufferSize)
	assert.Empty(t, cfg.Redis.Addr)
}

// TestPurpose: Validates environment overrides.
// Scope: Unit Test
// Expected: Every section reads its own unprefixed keys.
// Test Case ID: CFG-02
func TestConfig_Load_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_VARIANT", "console")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("SESSION_COOKIE_SAME_SITE", "Strict")
	t.Setenv("RATELIMIT_MAX_REQUESTS", "5")
	t.Setenv("ACCESS_UPSTREAM_TIMEOUT", "250ms")
	t.Setenv("LOGIN_THROTTLE_BURST", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "console", cfg.App.Variant)
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
	assert.Equal(t, http.SameSiteStrictMode, cfg.Session.SameSite())
	assert.Equal(t, 5, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 250*time.Millisecond, cfg.Access.UpstreamTimeout)
	assert.Equal(t, 2, cfg.LoginThrottle.Burst)
}

// TestPurpose: Validates rejection of unsafe configuration.
// Scope: Unit Test
// Security: Weak secrets and insecure production cookies are refused at startup
// Expected: Load fails with a message naming the offending key.
// Test Case ID: CFG-03
func TestConfig_Load_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"short secret", map[string]string{"SESSION_SECRET": "short"}, "SESSION_SECRET"},
		{"unknown variant", map[string]string{"APP_VARIANT": "partner"}, "APP_VARIANT"},
		{"insecure production cookie", map[string]string{"APP_ENV": "production"}, "SESSION_COOKIE_SECURE"},
		{"bootstrap without password", map[string]string{"BOOTSTRAP_ADMIN_EMAIL": "root@staffgate.test"}, "BOOTSTRAP_ADMIN_PASSWORD"},
		{"zero timeout", map[string]string{"ACCESS_UPSTREAM_TIMEOUT": "0s"}, "ACCESS_UPSTREAM_TIMEOUT"},
		{"malformed duration", map[string]string{"SESSION_LIFETIME": "soon"}, "SESSION_LIFETIME"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_Load_MissingDatabasePassword(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret)
	t.Setenv("DB_PASSWORD", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PASSWORD")
}
