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
	"github.com/opentrusty/staffgate/internal/id"
	"github.com/opentrusty/staffgate/internal/session"
)

const sessionColumns = `id, user_id, ip_address, user_agent, expires_at, created_at, last_seen_at`

// SessionRepository keeps sessions in the sessions table. Rows are removed
// by DeleteExpired; reads do not filter on expiry.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, sess *session.Session) error {
	if _, err := r.db.pool.Exec(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sess.ID, sess.PrincipalID, sess.IPAddress, sess.UserAgent,
		sess.ExpiresAt, sess.CreatedAt, sess.LastSeenAt,
	); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Get returns ErrSessionNotFound for malformed IDs without touching the database.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	if !id.Valid(sessionID) {
		return nil, session.ErrSessionNotFound
	}

	row := r.db.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, sessionID)
	sess, err := scanSession(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, session.ErrSessionNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var s session.Session
	err := row.Scan(&s.ID, &s.PrincipalID, &s.IPAddress, &s.UserAgent, &s.ExpiresAt, &s.CreatedAt, &s.LastSeenAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Touch moves last_seen_at forward only; a stale write never rewinds it.
func (r *SessionRepository) Touch(ctx context.Context, sessionID string, lastSeen time.Time) error {
	if !id.Valid(sessionID) {
		return session.ErrSessionNotFound
	}
	tag, err := r.db.pool.Exec(ctx,
		`UPDATE sessions SET last_seen_at = GREATEST(last_seen_at, $2) WHERE id = $1`,
		sessionID, lastSeen)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

// Delete is idempotent.
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	if !id.Valid(sessionID) {
		return nil
	}
	if _, err := r.db.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByPrincipal ends every session of a principal, e.g. after a
// password change.
func (r *SessionRepository) DeleteByPrincipal(ctx context.Context, principalID string) error {
	if _, err := r.db.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, principalID); err != nil {
		return fmt.Errorf("failed to delete principal sessions: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
