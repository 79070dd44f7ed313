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
	"time"
)

// Domain errors
var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCredentialExists   = errors.New("credential already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password does not meet security requirements")
	ErrAccountLocked      = errors.New("account is locked")
)

// Credential is the password login of a principal. Email is stored lower-case.
type Credential struct {
	PrincipalID         string
	Email               string
	PasswordHash        string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	UpdatedAt           time.Time
}

// IsLocked reports whether the credential is locked at now.
func (c *Credential) IsLocked(now time.Time) bool {
	return c.LockedUntil != nil && c.LockedUntil.After(now)
}

// CredentialRepository defines the interface for credential persistence
type CredentialRepository interface {
	// Create stores a new credential. Returns ErrCredentialExists on a duplicate email.
	Create(ctx context.Context, credential *Credential) error

	// GetByEmail returns ErrCredentialNotFound when no credential matches.
	GetByEmail(ctx context.Context, email string) (*Credential, error)

	// UpdateLockout updates the failed attempt counter and lock
	UpdateLockout(ctx context.Context, principalID string, failedAttempts int, lockedUntil *time.Time) error

	// UpdatePassword replaces the password hash
	UpdatePassword(ctx context.Context, principalID, passwordHash string) error
}
