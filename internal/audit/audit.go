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

package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Event types
const (
	TypeLogin              = "login"
	TypeLogout             = "logout"
	TypeLoginFailed        = "login_failed"
	TypePasswordReset      = "password_reset"
	TypeMFAEnabled         = "mfa_enabled"
	TypeMFADisabled        = "mfa_disabled"
	TypePermissionGranted  = "permission_granted"
	TypePermissionRevoked  = "permission_revoked"
	TypeUserInvited        = "user_invited"
	TypeUserActivated      = "user_activated"
	TypeUserDeactivated    = "user_deactivated"
	TypeSettingsUpdated    = "settings_updated"
	TypeDataExport         = "data_export"
	TypeSuspiciousActivity = "suspicious_activity"
	TypeProcessSelected    = "process_selected"
	TypeProcessSwitched    = "process_switched"
)

// Metadata keys
const (
	AttrReason   = "reason"
	AttrPath     = "path"
	AttrMethod   = "method"
	AttrAttempts = "attempts"
	AttrFrom     = "from"
	AttrTo       = "to"
	AttrRemember = "remember"
	AttrRole     = "role"
	AttrProcess  = "process"
)

// ActorSystemBootstrap identifies events written by the bootstrap command.
const ActorSystemBootstrap = "system:bootstrap"

// SecurityEvent is an immutable audit record. Sinks append it; nothing in
// this module updates or deletes one.
type SecurityEvent struct {
	ID             string
	Type           string
	PrincipalID    string
	PrincipalEmail string
	PrincipalRole  string
	Resource       string
	ResourceID     string
	Action         string
	Success        bool
	ErrorMessage   string
	IPAddress      string
	UserAgent      string
	CompanyID      string
	Metadata       map[string]any
	Timestamp      time.Time
}

// Sink durably records security events.
type Sink interface {
	Record(ctx context.Context, event SecurityEvent) error
}

// Emitter hands events to a sink without ever blocking or failing the caller.
type Emitter interface {
	Emit(ctx context.Context, event SecurityEvent)
}

// SlogSink writes events to the operator log with secrets redacted.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a new slog sink. A nil logger uses slog.Default.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Record logs the event at INFO level
func (s *SlogSink) Record(ctx context.Context, event SecurityEvent) error {
	attrs := []slog.Attr{
		slog.String("audit_id", event.ID),
		slog.String("audit_type", event.Type),
		slog.String("principal_id", event.PrincipalID),
		slog.Bool("success", event.Success),
		slog.Time("timestamp", event.Timestamp),
	}

	if event.PrincipalEmail != "" {
		attrs = append(attrs, slog.String("principal_email", event.PrincipalEmail))
	}
	if event.PrincipalRole != "" {
		attrs = append(attrs, slog.String("principal_role", event.PrincipalRole))
	}
	if event.Resource != "" {
		attrs = append(attrs, slog.String("resource", event.Resource))
	}
	if event.ResourceID != "" {
		attrs = append(attrs, slog.String("resource_id", event.ResourceID))
	}
	if event.Action != "" {
		attrs = append(attrs, slog.String("action", event.Action))
	}
	if event.ErrorMessage != "" {
		attrs = append(attrs, slog.String("error_message", event.ErrorMessage))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.CompanyID != "" {
		attrs = append(attrs, slog.String("company_id", event.CompanyID))
	}

	if len(event.Metadata) > 0 {
		group := make([]any, 0, len(event.Metadata))
		for k, v := range Redact(event.Metadata) {
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	attrs = append(attrs, slog.String("component", "audit"))
	s.logger.LogAttrs(ctx, slog.LevelInfo, "AUDIT_EVENT", attrs...)
	return nil
}

// MultiSink records every event to each sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, event SecurityEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Redact returns a copy of metadata with secret-looking values replaced.
func Redact(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if isSecret(k) {
			v = "[REDACTED]"
		}
		out[k] = v
	}
	return out
}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	key = strings.ToLower(key)
	for _, s := range []string{"password", "secret", "token", "key", "hash", "credential", "authorization"} {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
