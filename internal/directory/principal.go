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

// Package directory holds the canonical principal shape and the lookup
// contract the access pipeline reads it through.
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/opentrusty/staffgate/internal/authz"
	"github.com/opentrusty/staffgate/internal/process"
)

// Domain errors
var (
	ErrNotFound      = errors.New("principal not found")
	ErrInvalidRecord = errors.New("invalid directory record")
)

// Principal is an authenticated identity together with its directory entry.
type Principal struct {
	ID          string
	Email       string
	Role        authz.Role
	CompanyIDs  []string
	Grants      []authz.Grant
	Active      bool
	Process     process.Permission
	LastLoginAt *time.Time
}

// SubjectRole implements authz.Subject.
func (p *Principal) SubjectRole() authz.Role {
	if p == nil {
		return ""
	}
	return p.Role
}

// SubjectGrants implements authz.Subject.
func (p *Principal) SubjectGrants() []authz.Grant {
	if p == nil {
		return nil
	}
	return p.Grants
}

// Directory resolves a principal id to its directory entry.
type Directory interface {
	// Lookup returns ErrNotFound when the identity has no directory entry.
	Lookup(ctx context.Context, principalID string) (*Principal, error)
}

// LoginRecorder stores the time of the last successful sign-in.
type LoginRecorder interface {
	RecordLogin(ctx context.Context, principalID string, at time.Time) error
}
