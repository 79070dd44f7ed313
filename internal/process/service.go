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

package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opentrusty/staffgate/internal/observability/logger"
)

var (
	ErrPermissionDenied = errors.New("process not permitted")
	ErrNoPrincipal      = errors.New("principal id is required")
)

// Store persists the current process of a principal.
type Store interface {
	// CompareAndSetCurrentProcess writes next only when the stored value still
	// equals expected ("" meaning unset). It reports whether a write happened.
	CompareAndSetCurrentProcess(ctx context.Context, principalID string, expected, next Type) (bool, error)

	// SetCurrentProcess writes next unconditionally.
	SetCurrentProcess(ctx context.Context, principalID string, next Type) error
}

// Service drives the selection state machine.
type Service struct {
	store Store
}

// NewService creates a new process service
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Resolve performs the single-permission auto-resolution. Any other state is
// returned unchanged without touching the store. The write is conditional on
// the stored value the caller observed, so repeating it is a no-op.
func (s *Service) Resolve(ctx context.Context, principalID string, perm Permission) (Permission, error) {
	if perm.State() != SinglePermission {
		return perm, nil
	}
	if principalID == "" {
		return perm, ErrNoPrincipal
	}

	next := perm.Allowed[0]
	if perm.Stored != next {
		written, err := s.store.CompareAndSetCurrentProcess(ctx, principalID, perm.Stored, next)
		if err != nil {
			return perm, fmt.Errorf("failed to resolve process: %w", err)
		}
		if written {
			perm.Stored = next
		} else {
			slog.WarnContext(ctx, "current process changed before auto-resolution",
				logger.PrincipalID(principalID),
				logger.Process(string(next)),
				slog.String("expected", string(perm.Stored)),
			)
		}
	}

	perm.Current = next
	return perm, nil
}

// Select commits candidate as the current process. Candidates outside the
// allowed set fail with ErrPermissionDenied and leave Current unchanged.
func (s *Service) Select(ctx context.Context, principalID string, perm Permission, candidate Type) (Permission, error) {
	if !perm.Has(candidate) {
		return perm, ErrPermissionDenied
	}
	if principalID == "" {
		return perm, ErrNoPrincipal
	}
	if perm.Current == candidate {
		return perm, nil
	}

	if err := s.store.SetCurrentProcess(ctx, principalID, candidate); err != nil {
		return perm, fmt.Errorf("failed to select process: %w", err)
	}

	perm.Current = candidate
	perm.Stored = candidate
	return perm, nil
}
