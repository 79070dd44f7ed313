// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration. It is read once at startup.
type Config struct {
	App           AppConfig
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Session       SessionConfig
	Observability ObservabilityConfig
	Security      SecurityConfig
	RateLimit     RateLimitConfig
	LoginThrottle LoginThrottleConfig
	Access        AccessConfig
	Audit         AuditConfig
	Bootstrap     BootstrapConfig
}

// AppConfig selects the application variant
type AppConfig struct {
	Env     string `envconfig:"APP_ENV" default:"development"`
	Variant string `envconfig:"APP_VARIANT" default:"customer"`
	// PolicyFile optionally overrides the built-in policy of the variant.
	PolicyFile string `envconfig:"APP_POLICY_FILE"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port           string        `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout    time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout   time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout    time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	RequestTimeout time.Duration `envconfig:"SERVER_REQUEST_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string `envconfig:"DB_HOST" default:"localhost"`
	Port         string `envconfig:"DB_PORT" default:"5432"`
	User         string `envconfig:"DB_USER" default:"staffgate"`
	Password     string `envconfig:"DB_PASSWORD"`
	Database     string `envconfig:"DB_NAME" default:"staffgate"`
	SSLMode      string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`

	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`
}

// RedisConfig holds the optional session store. An empty Addr keeps
// sessions in postgres.
type RedisConfig struct {
	Addr      string `envconfig:"REDIS_ADDR"`
	Password  string `envconfig:"REDIS_PASSWORD"`
	DB        int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"staffgate"`
}

// SessionConfig holds session management configuration
type SessionConfig struct {
	Secret           string        `envconfig:"SESSION_SECRET"`
	Issuer           string        `envconfig:"SESSION_ISSUER" default:"staffgate"`
	CookieName       string        `envconfig:"SESSION_COOKIE_NAME" default:"staffgate_session"`
	CookieDomain     string        `envconfig:"SESSION_COOKIE_DOMAIN"`
	CookiePath       string        `envconfig:"SESSION_COOKIE_PATH" default:"/"`
	CookieSecure     bool          `envconfig:"SESSION_COOKIE_SECURE" default:"false"`
	CookieHTTPOnly   bool          `envconfig:"SESSION_COOKIE_HTTP_ONLY" default:"true"`
	CookieSameSite   string        `envconfig:"SESSION_COOKIE_SAME_SITE" default:"Lax"`
	Lifetime         time.Duration `envconfig:"SESSION_LIFETIME" default:"24h"`
	RememberLifetime time.Duration `envconfig:"SESSION_REMEMBER_LIFETIME" default:"720h"`
	IdleTimeout      time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"30m"`
	CleanupInterval  time.Duration `envconfig:"SESSION_CLEANUP_INTERVAL" default:"1h"`
}

// SameSite maps CookieSameSite to its http constant. Unknown values fall
// back to Lax.
func (c SessionConfig) SameSite() http.SameSite {
	switch strings.ToLower(c.CookieSameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string  `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string  `envconfig:"LOG_FORMAT" default:"json"`
	OTELEnabled    bool    `envconfig:"OTEL_ENABLED" default:"false"`
	ServiceName    string  `envconfig:"OTEL_SERVICE_NAME" default:"staffgate"`
	ServiceVersion string  `envconfig:"OTEL_SERVICE_VERSION" default:"0.1.0"`
	SamplingRate   float64 `envconfig:"OTEL_SAMPLING_RATE" default:"1"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	Argon2Memory       uint32        `envconfig:"ARGON2_MEMORY" default:"65536"`
	Argon2Iterations   uint32        `envconfig:"ARGON2_ITERATIONS" default:"3"`
	Argon2Parallelism  uint8         `envconfig:"ARGON2_PARALLELISM" default:"4"`
	Argon2SaltLength   uint32        `envconfig:"ARGON2_SALT_LENGTH" default:"16"`
	Argon2KeyLength    uint32        `envconfig:"ARGON2_KEY_LENGTH" default:"32"`
	LockoutMaxAttempts int           `envconfig:"SECURITY_LOCKOUT_MAX_ATTEMPTS" default:"5"`
	LockoutDuration    time.Duration `envconfig:"SECURITY_LOCKOUT_DURATION" default:"15m"`
	SSLRedirect        bool          `envconfig:"SECURITY_SSL_REDIRECT" default:"false"`
	STSSeconds         int64         `envconfig:"SECURITY_STS_SECONDS" default:"31536000"`
	// ContentSecurityPolicy replaces the built-in CSP when set.
	ContentSecurityPolicy string `envconfig:"SECURITY_CSP"`
}

// RateLimitConfig holds the mutation limiter and the per-address request cap
type RateLimitConfig struct {
	Window            time.Duration `envconfig:"RATELIMIT_WINDOW" default:"1m"`
	MaxRequests       int           `envconfig:"RATELIMIT_MAX_REQUESTS" default:"100"`
	MaxKeys           int           `envconfig:"RATELIMIT_MAX_KEYS" default:"10000"`
	RequestsPerMinute int           `envconfig:"RATELIMIT_REQUESTS_PER_MINUTE" default:"600"`
}

// LoginThrottleConfig holds the sign-in token bucket
type LoginThrottleConfig struct {
	RequestsPerSecond float64 `envconfig:"LOGIN_THROTTLE_RPS" default:"1"`
	Burst             int     `envconfig:"LOGIN_THROTTLE_BURST" default:"5"`
}

// AccessConfig holds access pipeline settings
type AccessConfig struct {
	UpstreamTimeout time.Duration `envconfig:"ACCESS_UPSTREAM_TIMEOUT" default:"5s"`
}

// AuditConfig holds the async audit emitter settings
type AuditConfig struct {
	BufferSize   int           `envconfig:"AUDIT_BUFFER_SIZE" default:"1024"`
	WriteTimeout time.Duration `envconfig:"AUDIT_WRITE_TIMEOUT" default:"5s"`
}

// BootstrapConfig names the first console administrator
type BootstrapConfig struct {
	AdminEmail    string `envconfig:"BOOTSTRAP_ADMIN_EMAIL"`
	AdminPassword string `envconfig:"BOOTSTRAP_ADMIN_PASSWORD"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	// Sections are processed one by one so that keys stay unprefixed.
	sections := []any{
		&cfg.App, &cfg.Server, &cfg.Database, &cfg.Redis, &cfg.Session,
		&cfg.Observability, &cfg.Security, &cfg.RateLimit, &cfg.LoginThrottle,
		&cfg.Access, &cfg.Audit, &cfg.Bootstrap,
	}
	for _, section := range sections {
		if err := envconfig.Process("", section); err != nil {
			return nil, fmt.Errorf("failed to read configuration: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// IsProduction reports whether the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.App.Env == "production"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	switch c.App.Variant {
	case "console", "customer":
	default:
		errs = append(errs, fmt.Errorf("APP_VARIANT must be console or customer, got %q", c.App.Variant))
	}
	if c.Database.Password == "" {
		errs = append(errs, errors.New("DB_PASSWORD is required"))
	}
	if len(c.Session.Secret) < 32 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 32 bytes"))
	}
	if c.Session.Lifetime <= 0 {
		errs = append(errs, errors.New("SESSION_LIFETIME must be positive"))
	}
	if c.Session.RememberLifetime < c.Session.Lifetime {
		errs = append(errs, errors.New("SESSION_REMEMBER_LIFETIME must not be shorter than SESSION_LIFETIME"))
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, errors.New("RATELIMIT_WINDOW and RATELIMIT_MAX_REQUESTS must be positive"))
	}
	if c.LoginThrottle.RequestsPerSecond <= 0 || c.LoginThrottle.Burst <= 0 {
		errs = append(errs, errors.New("LOGIN_THROTTLE_RPS and LOGIN_THROTTLE_BURST must be positive"))
	}
	if c.Access.UpstreamTimeout <= 0 {
		errs = append(errs, errors.New("ACCESS_UPSTREAM_TIMEOUT must be positive"))
	}
	if c.Audit.BufferSize <= 0 {
		errs = append(errs, errors.New("AUDIT_BUFFER_SIZE must be positive"))
	}
	if c.IsProduction() && !c.Session.CookieSecure {
		errs = append(errs, errors.New("SESSION_COOKIE_SECURE is required in production"))
	}
	if c.Bootstrap.AdminEmail != "" && c.Bootstrap.AdminPassword == "" {
		errs = append(errs, errors.New("BOOTSTRAP_ADMIN_PASSWORD is required with BOOTSTRAP_ADMIN_EMAIL"))
	}

	return errors.Join(errs...)
}
