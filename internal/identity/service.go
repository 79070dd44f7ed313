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

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opentrusty/staffgate/internal/audit"
	"github.com/opentrusty/staffgate/internal/observability/logger"
	"github.com/opentrusty/staffgate/internal/session"
)

// Service verifies credentials and resolves session tokens to principal ids.
type Service struct {
	creds              CredentialRepository
	hasher             *PasswordHasher
	sessions           *session.Service
	tokens             *session.TokenCodec
	auditor            audit.Emitter
	lockoutMaxAttempts int
	lockoutDuration    time.Duration
	now                func() time.Time
}

// NewService creates a new identity service
func NewService(
	creds CredentialRepository,
	hasher *PasswordHasher,
	sessions *session.Service,
	tokens *session.TokenCodec,
	auditor audit.Emitter,
	lockoutMaxAttempts int,
	lockoutDuration time.Duration,
) *Service {
	return &Service{
		creds:              creds,
		hasher:             hasher,
		sessions:           sessions,
		tokens:             tokens,
		auditor:            auditor,
		lockoutMaxAttempts: lockoutMaxAttempts,
		lockoutDuration:    lockoutDuration,
		now:                time.Now,
	}
}

// VerifyCredentials returns the principal id for a matching email and
// password. Unknown emails and wrong passwords both return
// ErrInvalidCredentials; a locked credential returns ErrAccountLocked. When
// the email is known its principal id accompanies the error for auditing.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (string, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		s.hasher.VerifyDummy(password)
		return "", ErrInvalidCredentials
	}

	cred, err := s.creds.GetByEmail(ctx, email)
	if errors.Is(err, ErrCredentialNotFound) {
		s.hasher.VerifyDummy(password)
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}

	now := s.now()
	if cred.IsLocked(now) {
		return cred.PrincipalID, ErrAccountLocked
	}

	valid, err := s.hasher.Verify(password, cred.PasswordHash)
	if err != nil {
		slog.ErrorContext(ctx, "stored password hash is unreadable",
			logger.PrincipalID(cred.PrincipalID),
			logger.Error(err),
		)
	}
	if err != nil || !valid {
		s.recordFailure(ctx, cred, now)
		return cred.PrincipalID, ErrInvalidCredentials
	}

	if cred.FailedLoginAttempts > 0 || cred.LockedUntil != nil {
		if err := s.creds.UpdateLockout(ctx, cred.PrincipalID, 0, nil); err != nil {
			slog.WarnContext(ctx, "failed to reset lockout", logger.PrincipalID(cred.PrincipalID), logger.Error(err))
		}
	}

	return cred.PrincipalID, nil
}

func (s *Service) recordFailure(ctx context.Context, cred *Credential, now time.Time) {
	attempts := cred.FailedLoginAttempts + 1
	var lockedUntil *time.Time

	if s.lockoutMaxAttempts > 0 && attempts >= s.lockoutMaxAttempts {
		until := now.Add(s.lockoutDuration)
		lockedUntil = &until
		s.auditor.Emit(ctx, audit.SecurityEvent{
			Type:           audit.TypeSuspiciousActivity,
			PrincipalID:    cred.PrincipalID,
			PrincipalEmail: cred.Email,
			Resource:       "login",
			Metadata: map[string]any{
				audit.AttrReason:   "lockout threshold reached",
				audit.AttrAttempts: attempts,
			},
		})
	}

	if err := s.creds.UpdateLockout(ctx, cred.PrincipalID, attempts, lockedUntil); err != nil {
		slog.WarnContext(ctx, "failed to record failed login", logger.PrincipalID(cred.PrincipalID), logger.Error(err))
	}
}

// ResolvePrincipalFromSession maps a session token to a principal id. An
// invalid, expired or revoked session returns ("", nil); only storage
// failures return an error.
func (s *Service) ResolvePrincipalFromSession(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", nil
	}

	sessionID, subject, err := s.tokens.Decode(token)
	if err != nil {
		return "", nil
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrSessionExpired) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve session: %w", err)
	}
	if sess.PrincipalID != subject {
		slog.WarnContext(ctx, "session token subject mismatch", logger.SessionID(sessionID))
		return "", nil
	}

	if err := s.sessions.Refresh(ctx, sessionID); err != nil {
		slog.WarnContext(ctx, "failed to refresh session", logger.SessionID(sessionID), logger.Error(err))
	}

	return sess.PrincipalID, nil
}

// StartSession creates a session for principalID and returns its token.
func (s *Service) StartSession(ctx context.Context, principalID, ipAddress, userAgent string, remember bool) (string, *session.Session, error) {
	sess, err := s.sessions.Create(ctx, principalID, ipAddress, userAgent, remember)
	if err != nil {
		return "", nil, err
	}
	token, err := s.tokens.Encode(sess)
	if err != nil {
		_ = s.sessions.Destroy(ctx, sess.ID)
		return "", nil, err
	}
	return token, sess, nil
}

// EndSession revokes the session named by token and returns its principal.
// Ending an invalid or already ended session is not an error.
func (s *Service) EndSession(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", nil
	}
	sessionID, principalID, err := s.tokens.Decode(token)
	if err != nil {
		return "", nil
	}
	if err := s.sessions.Destroy(ctx, sessionID); err != nil {
		return principalID, err
	}
	return principalID, nil
}

// ProvisionCredential adds a password login for principalID.
func (s *Service) ProvisionCredential(ctx context.Context, principalID, email, password string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.creds.Create(ctx, &Credential{
		PrincipalID:  principalID,
		Email:        email,
		PasswordHash: hash,
		UpdatedAt:    s.now().UTC(),
	})
}

// ChangePassword replaces the password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, email, oldPassword, newPassword string) error {
	principalID, err := s.VerifyCredentials(ctx, email, oldPassword)
	if err != nil {
		return err
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.creds.UpdatePassword(ctx, principalID, hash); err != nil {
		return err
	}

	// Existing sessions end with the old password.
	return s.sessions.DestroyAll(ctx, principalID)
}
