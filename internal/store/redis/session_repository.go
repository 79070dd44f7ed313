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

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opentrusty/staffgate/internal/session"
	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "staffgate"

// SessionRepository implements session.Repository. Each session is a JSON
// value expiring with the session; a per-principal set indexes the ids.
type SessionRepository struct {
	client *goredis.Client
	prefix string
	now    func() time.Time
}

// NewSessionRepository creates a new session repository. An empty prefix
// uses "staffgate".
func NewSessionRepository(client *goredis.Client, prefix string) *SessionRepository {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &SessionRepository{client: client, prefix: prefix, now: time.Now}
}

type sessionPayload struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principal_id"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

func (r *SessionRepository) sessionKey(id string) string {
	return r.prefix + ":session:" + id
}

func (r *SessionRepository) principalKey(principalID string) string {
	return r.prefix + ":principal_sessions:" + principalID
}

// Create stores a new session
func (r *SessionRepository) Create(ctx context.Context, sess *session.Session) error {
	ttl := sess.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return session.ErrSessionExpired
	}

	data, err := json.Marshal(sessionPayload(*sess))
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	pkey := r.principalKey(sess.PrincipalID)
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, r.sessionKey(sess.ID), data, ttl)
		pipe.SAdd(ctx, pkey, sess.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	// The index lives as long as the longest session in it.
	current, err := r.client.TTL(ctx, pkey).Result()
	if err == nil && current < ttl {
		r.client.Expire(ctx, pkey, ttl)
	}
	return nil
}

// Get retrieves a session by ID
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	data, err := r.client.Get(ctx, r.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var p sessionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	sess := session.Session(p)
	return &sess, nil
}

// Touch moves the last seen time forward without changing the expiry
func (r *SessionRepository) Touch(ctx context.Context, sessionID string, lastSeen time.Time) error {
	sess, err := r.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !lastSeen.After(sess.LastSeenAt) {
		return nil
	}
	sess.LastSeenAt = lastSeen

	data, err := json.Marshal(sessionPayload(*sess))
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	// XX: a session deleted in between stays deleted.
	if err := r.client.SetArgs(ctx, r.sessionKey(sessionID), data, goredis.SetArgs{KeepTTL: true, Mode: "XX"}).Err(); err != nil {
		if errors.Is(err, goredis.Nil) {
			return session.ErrSessionNotFound
		}
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Delete deletes a session
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	sess, err := r.Get(ctx, sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, r.sessionKey(sessionID))
		pipe.SRem(ctx, r.principalKey(sess.PrincipalID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByPrincipal deletes all sessions of a principal
func (r *SessionRepository) DeleteByPrincipal(ctx context.Context, principalID string) error {
	pkey := r.principalKey(principalID)
	ids, err := r.client.SMembers(ctx, pkey).Result()
	if err != nil {
		return fmt.Errorf("failed to list principal sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, r.sessionKey(id))
	}
	keys = append(keys, pkey)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete principal sessions: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis expires session keys itself.
func (r *SessionRepository) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
