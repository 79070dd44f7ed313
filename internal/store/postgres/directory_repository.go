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
	"github.com/opentrusty/staffgate/internal/authz"
	"github.com/opentrusty/staffgate/internal/directory"
	"github.com/opentrusty/staffgate/internal/id"
	"github.com/opentrusty/staffgate/internal/process"
)

// DirectoryRepository implements directory.Directory, directory.LoginRecorder,
// process.Store and identity.AdminProvisioner
type DirectoryRepository struct {
	db *DB
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// Lookup loads a principal with its grants and company affiliations
func (r *DirectoryRepository) Lookup(ctx context.Context, principalID string) (*directory.Principal, error) {
	if !id.Valid(principalID) {
		return nil, directory.ErrNotFound
	}

	var rec directory.Record
	var companyID, currentProcess *string

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, email, role, company_id, is_active, process_permissions,
			current_process, profile, last_login_at
		FROM users
		WHERE id = $1
	`, principalID).Scan(
		&rec.ID, &rec.Email, &rec.Role, &companyID, &rec.Active, &rec.ProcessPermissions,
		&currentProcess, &rec.Profile, &rec.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, directory.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}
	if companyID != nil {
		rec.CompanyID = *companyID
	}
	if currentProcess != nil {
		rec.CurrentProcess = *currentProcess
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT company_id FROM user_companies WHERE user_id = $1 ORDER BY company_id
	`, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get affiliations: %w", err)
	}
	rec.CompanyIDs, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan affiliations: %w", err)
	}

	rows, err = r.db.pool.Query(ctx, `
		SELECT resource, actions, company_id
		FROM user_permissions
		WHERE user_id = $1
		ORDER BY granted_at
	`, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get grants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var g directory.GrantRecord
		var scope *string
		if err := rows.Scan(&g.Resource, &g.Actions, &scope); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		if scope != nil {
			g.CompanyID = *scope
		}
		rec.Grants = append(rec.Grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read grants: %w", err)
	}

	return directory.Normalize(rec)
}

// CompareAndSetCurrentProcess writes next only while current_process still
// holds expected
func (r *DirectoryRepository) CompareAndSetCurrentProcess(ctx context.Context, principalID string, expected, next process.Type) (bool, error) {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET current_process = $3, updated_at = NOW()
		WHERE id = $1 AND current_process IS NOT DISTINCT FROM $2::text
	`, principalID, nullable(string(expected)), string(next))
	if err != nil {
		return false, fmt.Errorf("failed to set current process: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// SetCurrentProcess writes next unconditionally
func (r *DirectoryRepository) SetCurrentProcess(ctx context.Context, principalID string, next process.Type) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET current_process = $2, updated_at = NOW()
		WHERE id = $1
	`, principalID, string(next))
	if err != nil {
		return fmt.Errorf("failed to set current process: %w", err)
	}
	if result.RowsAffected() == 0 {
		return directory.ErrNotFound
	}
	return nil
}

// RecordLogin stores the last successful sign-in time
func (r *DirectoryRepository) RecordLogin(ctx context.Context, principalID string, at time.Time) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE users SET last_login_at = $2 WHERE id = $1
	`, principalID, at)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// EnsureAdmin returns the id of the principal with email, creating it or
// raising it to role
func (r *DirectoryRepository) EnsureAdmin(ctx context.Context, email string, role authz.Role) (string, error) {
	var principalID string
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, role, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (email) DO UPDATE SET role = EXCLUDED.role, is_active = TRUE, updated_at = NOW()
		RETURNING id
	`, id.NewUUIDv7(), email, string(role)).Scan(&principalID)
	if err != nil {
		return "", fmt.Errorf("failed to ensure administrator: %w", err)
	}
	return principalID, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
