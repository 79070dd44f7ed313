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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/opentrusty/staffgate/internal/identity"
)

const uniqueViolation = "23505"

// CredentialRepository implements identity.CredentialRepository
type CredentialRepository struct {
	db *DB
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Create stores a new credential
func (r *CredentialRepository) Create(ctx context.Context, c *identity.Credential) error {
	now := time.Now()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO credentials (user_id, email, password_hash, updated_at)
		VALUES ($1, $2, $3, $4)
	`, c.PrincipalID, c.Email, c.PasswordHash, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return identity.ErrCredentialExists
		}
		return fmt.Errorf("failed to insert credential: %w", err)
	}

	c.UpdatedAt = now
	return nil
}

// GetByEmail retrieves a credential by email
func (r *CredentialRepository) GetByEmail(ctx context.Context, email string) (*identity.Credential, error) {
	var c identity.Credential
	err := r.db.pool.QueryRow(ctx, `
		SELECT user_id, email, password_hash, failed_login_attempts, locked_until, updated_at
		FROM credentials
		WHERE email = $1
	`, email).Scan(
		&c.PrincipalID, &c.Email, &c.PasswordHash, &c.FailedLoginAttempts, &c.LockedUntil, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &c, nil
}

// UpdateLockout updates the failed attempt counter and lock
func (r *CredentialRepository) UpdateLockout(ctx context.Context, principalID string, failedAttempts int, lockedUntil *time.Time) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE credentials SET failed_login_attempts = $2, locked_until = $3
		WHERE user_id = $1
	`, principalID, failedAttempts, lockedUntil)
	if err != nil {
		return fmt.Errorf("failed to update lockout: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrCredentialNotFound
	}
	return nil
}

// UpdatePassword replaces the password hash and clears any lock
func (r *CredentialRepository) UpdatePassword(ctx context.Context, principalID, passwordHash string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE credentials
		SET password_hash = $2, failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE user_id = $1
	`, principalID, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrCredentialNotFound
	}
	return nil
}
