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

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opentrusty/staffgate/internal/id"
)

// Config holds session lifetimes
type Config struct {
	Lifetime    time.Duration
	IdleTimeout time.Duration
	// RememberLifetime replaces Lifetime for "remember me" sign-ins.
	RememberLifetime time.Duration
}

// Service manages the session lifecycle
type Service struct {
	repo Repository
	cfg  Config
	now  func() time.Time
}

// NewService creates a new session service
func NewService(repo Repository, cfg Config) *Service {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = 24 * time.Hour
	}
	if cfg.RememberLifetime <= 0 {
		cfg.RememberLifetime = cfg.Lifetime
	}
	return &Service{repo: repo, cfg: cfg, now: time.Now}
}

// WithClock replaces time.Now, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create starts a new session for principalID
func (s *Service) Create(ctx context.Context, principalID, ipAddress, userAgent string, remember bool) (*Session, error) {
	if principalID == "" {
		return nil, ErrSessionInvalid
	}

	lifetime := s.cfg.Lifetime
	if remember {
		lifetime = s.cfg.RememberLifetime
	}

	now := s.now().UTC()
	sess := &Session{
		ID:          id.NewUUIDv7(),
		PrincipalID: principalID,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		ExpiresAt:   now.Add(lifetime),
		CreatedAt:   now,
		LastSeenAt:  now,
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// Get returns a live session. Expired and idle sessions are removed and
// reported as ErrSessionExpired.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if sess.IsExpired(now) || sess.IsIdle(now, s.cfg.IdleTimeout) {
		if err := s.repo.Delete(ctx, sessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
			slog.WarnContext(ctx, "failed to delete stale session", slog.String("session_id", sessionID), slog.String("error", err.Error()))
		}
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Refresh records activity on a live session
func (s *Service) Refresh(ctx context.Context, sessionID string) error {
	return s.repo.Touch(ctx, sessionID, s.now().UTC())
}

// Destroy ends a session. Destroying a missing session is not an error.
func (s *Service) Destroy(ctx context.Context, sessionID string) error {
	if err := s.repo.Delete(ctx, sessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DestroyAll ends every session of a principal
func (s *Service) DestroyAll(ctx context.Context, principalID string) error {
	return s.repo.DeleteByPrincipal(ctx, principalID)
}

// CleanupExpired removes expired sessions
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}
