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

	"github.com/opentrusty/staffgate/internal/audit"
	"github.com/opentrusty/staffgate/internal/authz"
)

// AdminProvisioner creates the directory entry of the first administrator.
type AdminProvisioner interface {
	// EnsureAdmin returns the principal id holding role for email, creating
	// an active directory entry when none exists.
	EnsureAdmin(ctx context.Context, email string, role authz.Role) (string, error)
}

// BootstrapService provisions the first console administrator
type BootstrapService struct {
	identityService *Service
	provisioner     AdminProvisioner
	auditor         audit.Emitter
	role            authz.Role
}

// NewBootstrapService creates a new bootstrap service. role is the top role
// of the console hierarchy.
func NewBootstrapService(identityService *Service, provisioner AdminProvisioner, auditor audit.Emitter, role authz.Role) *BootstrapService {
	return &BootstrapService{
		identityService: identityService,
		provisioner:     provisioner,
		auditor:         auditor,
		role:            role,
	}
}

// Bootstrap creates the administrator for email unless a credential for it
// already exists. An empty email disables bootstrapping.
func (s *BootstrapService) Bootstrap(ctx context.Context, email, password string) error {
	if email == "" {
		return nil
	}

	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	_, err = s.identityService.creds.GetByEmail(ctx, email)
	if err == nil {
		slog.InfoContext(ctx, "bootstrap skipped, administrator exists", slog.String("email", email))
		return nil
	}
	if !errors.Is(err, ErrCredentialNotFound) {
		return fmt.Errorf("failed to check for existing administrator: %w", err)
	}

	if err := ValidatePassword(password); err != nil {
		return err
	}

	principalID, err := s.provisioner.EnsureAdmin(ctx, email, s.role)
	if err != nil {
		return fmt.Errorf("failed to provision administrator: %w", err)
	}

	if err := s.identityService.ProvisionCredential(ctx, principalID, email, password); err != nil {
		return fmt.Errorf("failed to add administrator credential: %w", err)
	}

	s.auditor.Emit(ctx, audit.SecurityEvent{
		Type:           audit.TypePermissionGranted,
		PrincipalID:    principalID,
		PrincipalEmail: email,
		PrincipalRole:  string(s.role),
		Resource:       "principal",
		ResourceID:     principalID,
		Action:         "bootstrap",
		Success:        true,
		Metadata: map[string]any{
			audit.AttrRole: string(s.role),
			"granted_by":   audit.ActorSystemBootstrap,
		},
	})

	slog.InfoContext(ctx, "bootstrapped initial administrator", slog.String("email", email), slog.String("principal_id", principalID))
	return nil
}
