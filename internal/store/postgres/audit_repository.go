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
	"fmt"

	"github.com/opentrusty/staffgate/internal/audit"
)

// AuditRepository implements audit.Sink on the append-only security_events table
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record appends a security event. Metadata is stored redacted.
func (r *AuditRepository) Record(ctx context.Context, ev audit.SecurityEvent) error {
	metadata := audit.Redact(ev.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO security_events (
			id, event_type, user_id, user_email, user_role, resource, resource_id,
			action, success, error_message, ip_address, user_agent, company_id,
			metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		ev.ID, ev.Type, ev.PrincipalID, ev.PrincipalEmail, ev.PrincipalRole, ev.Resource, ev.ResourceID,
		ev.Action, ev.Success, ev.ErrorMessage, ev.IPAddress, ev.UserAgent, ev.CompanyID,
		metadata, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}
	return nil
}
