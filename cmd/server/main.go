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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opentrusty/staffgate/internal/access"
	"github.com/opentrusty/staffgate/internal/audit"
	"github.com/opentrusty/staffgate/internal/config"
	"github.com/opentrusty/staffgate/internal/identity"
	"github.com/opentrusty/staffgate/internal/observability/logger"
	"github.com/opentrusty/staffgate/internal/observability/metrics"
	"github.com/opentrusty/staffgate/internal/observability/tracing"
	"github.com/opentrusty/staffgate/internal/policy"
	"github.com/opentrusty/staffgate/internal/process"
	"github.com/opentrusty/staffgate/internal/ratelimit"
	"github.com/opentrusty/staffgate/internal/session"
	"github.com/opentrusty/staffgate/internal/store/postgres"
	"github.com/opentrusty/staffgate/internal/store/redis"
	transportHTTP "github.com/opentrusty/staffgate/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
		Variant:     cfg.App.Variant,
		OTel:        cfg.Observability.OTELEnabled,
	})

	if len(os.Args) > 1 {
		var cmdErr error
		switch os.Args[1] {
		case "migrate":
			cmdErr = runMigrate(cfg)
		case "bootstrap":
			cmdErr = runBootstrap(cfg)
		case "cleanup-sessions":
			cmdErr = runCleanup(cfg)
		default:
			cmdErr = fmt.Errorf("unknown command %q (want migrate, bootstrap or cleanup-sessions)", os.Args[1])
		}
		if cmdErr != nil {
			slog.Error("command failed", logger.Operation(os.Args[1]), logger.Error(cmdErr))
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := serve(cfg); err != nil {
		slog.Error("server failed", logger.Error(err))
		os.Exit(1)
	}
}

func serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.InfoContext(ctx, "starting staffgate", logger.Variant(cfg.App.Variant))

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Variant:        cfg.App.Variant,
		Environment:    cfg.App.Env,
		SamplingRate:   cfg.Observability.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	meter := metrics.New(ctx, metrics.Config{Enabled: cfg.Observability.OTELEnabled}, cfg.Observability.ServiceName)

	pol, err := policy.Load(policy.Variant(cfg.App.Variant), cfg.App.PolicyFile)
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.InfoContext(ctx, "connected to database")

	// Audit events go to the log and to the security_events table. The
	// emitter is closed after the server so in-flight events are flushed.
	emitter := audit.NewAsyncEmitter(audit.MultiSink{
		audit.NewSlogSink(slog.Default()),
		postgres.NewAuditRepository(db),
	}, audit.EmitterConfig{
		BufferSize:   cfg.Audit.BufferSize,
		WriteTimeout: cfg.Audit.WriteTimeout,
	})
	defer func() {
		if err := emitter.Close(); err != nil {
			slog.Error("failed to flush audit events", logger.Error(err))
		}
	}()
	if _, err := meter.ObserveAudit(emitter); err != nil {
		return err
	}

	sessionRepo, closeSessions, err := openSessions(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeSessions()

	sessionService := session.NewService(sessionRepo, session.Config{
		Lifetime:         cfg.Session.Lifetime,
		IdleTimeout:      cfg.Session.IdleTimeout,
		RememberLifetime: cfg.Session.RememberLifetime,
	})
	identityService, err := newIdentityService(cfg, db, sessionService, emitter)
	if err != nil {
		return err
	}

	directoryRepo := postgres.NewDirectoryRepository(db)
	controller, err := access.NewController(access.Dependencies{
		Policy:    pol,
		Identity:  identityService,
		Sessions:  identityService,
		Directory: directoryRepo,
		Logins:    directoryRepo,
		Processes: process.NewService(directoryRepo),
		Limiter: ratelimit.New(ratelimit.Config{
			Window:      cfg.RateLimit.Window,
			MaxRequests: cfg.RateLimit.MaxRequests,
			MaxKeys:     cfg.RateLimit.MaxKeys,
		}),
		Audit:  emitter,
		Tracer: tracer.GetTracer(),
		Meter:  meter.GetMeter(),
	}, access.Config{UpstreamTimeout: cfg.Access.UpstreamTimeout})
	if err != nil {
		return err
	}

	throttle := transportHTTP.NewLoginThrottle(cfg.LoginThrottle.RequestsPerSecond, cfg.LoginThrottle.Burst)
	defer throttle.Close()

	handler := transportHTTP.NewHandler(
		controller,
		identityService,
		transportHTTP.SessionConfig{
			CookieName:     cfg.Session.CookieName,
			CookieDomain:   cfg.Session.CookieDomain,
			CookiePath:     cfg.Session.CookiePath,
			CookieSecure:   cfg.Session.CookieSecure,
			CookieHTTPOnly: cfg.Session.CookieHTTPOnly,
			CookieSameSite: cfg.Session.SameSite(),
		},
		transportHTTP.SecurityConfig{
			ContentSecurityPolicy: cfg.Security.ContentSecurityPolicy,
			SSLRedirect:           cfg.Security.SSLRedirect,
			STSSeconds:            cfg.Security.STSSeconds,
		},
	)
	handler.SetHealthProbe(db.Ping)
	router := transportHTTP.NewRouter(handler, throttle, transportHTTP.RouterConfig{
		RequestTimeout:    cfg.Server.RequestTimeout,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go cleanupLoop(ctx, sessionService, cfg.Session.CleanupInterval)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"), logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
	return nil
}

func cleanupLoop(ctx context.Context, sessions *session.Service, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.CleanupExpired(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "failed to cleanup expired sessions", logger.Error(err))
				continue
			}
			if n > 0 {
				slog.InfoContext(ctx, "expired sessions removed", logger.RowsAffected(n))
			}
		}
	}
}

func openDB(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,

		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// openSessions returns the redis session store when REDIS_ADDR is set and the
// postgres one otherwise.
func openSessions(ctx context.Context, cfg *config.Config, db *postgres.DB) (session.Repository, func(), error) {
	if cfg.Redis.Addr == "" {
		return postgres.NewSessionRepository(db), func() {}, nil
	}

	client, err := redis.New(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.InfoContext(ctx, "sessions stored in redis")
	return redis.NewSessionRepository(client, cfg.Redis.KeyPrefix), func() { _ = client.Close() }, nil
}

func newIdentityService(cfg *config.Config, db *postgres.DB, sessions *session.Service, auditor audit.Emitter) (*identity.Service, error) {
	tokens, err := session.NewTokenCodec(cfg.Session.Secret, cfg.Session.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session tokens: %w", err)
	}
	hasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)
	return identity.NewService(
		postgres.NewCredentialRepository(db),
		hasher,
		sessions,
		tokens,
		auditor,
		cfg.Security.LockoutMaxAttempts,
		cfg.Security.LockoutDuration,
	), nil
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("applying initial schema")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	slog.Info("migration successful")
	return nil
}

// runBootstrap provisions the first console administrator from
// BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD.
func runBootstrap(cfg *config.Config) error {
	if cfg.Bootstrap.AdminEmail == "" {
		return errors.New("BOOTSTRAP_ADMIN_EMAIL is not set")
	}

	ctx := context.Background()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	pol, err := policy.Default(policy.Console)
	if err != nil {
		return err
	}

	emitter := audit.NewAsyncEmitter(audit.MultiSink{
		audit.NewSlogSink(slog.Default()),
		postgres.NewAuditRepository(db),
	}, audit.EmitterConfig{BufferSize: cfg.Audit.BufferSize, WriteTimeout: cfg.Audit.WriteTimeout})
	defer emitter.Close()

	sessions := session.NewService(postgres.NewSessionRepository(db), session.Config{Lifetime: cfg.Session.Lifetime})
	identityService, err := newIdentityService(cfg, db, sessions, emitter)
	if err != nil {
		return err
	}

	return identity.NewBootstrapService(
		identityService,
		postgres.NewDirectoryRepository(db),
		emitter,
		pol.Hierarchy().Top(),
	).Bootstrap(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword)
}

func runCleanup(cfg *config.Config) error {
	ctx := context.Background()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	repo, closeSessions, err := openSessions(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeSessions()

	n, err := session.NewService(repo, session.Config{Lifetime: cfg.Session.Lifetime}).CleanupExpired(ctx)
	if err != nil {
		return err
	}
	slog.Info("expired sessions removed", logger.RowsAffected(n))
	return nil
}
