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

package authz

import (
	"fmt"
	"sort"
)

// Console roles.
const (
	// RoleSuperAdmin is the top console role.
	// Permissions: all (bypass)
	RoleSuperAdmin Role = "super_admin"

	// RoleCompanyAdmin administers the companies it is affiliated with.
	RoleCompanyAdmin Role = "company_admin"

	// RoleCompanyManager is the lowest console role.
	RoleCompanyManager Role = "company_manager"
)

// Customer roles.
const (
	// RoleAdmin is the top customer role.
	// Permissions: all (bypass)
	RoleAdmin Role = "admin"

	// RoleManager includes both recruiter and viewer capabilities.
	RoleManager Role = "manager"

	// RoleRecruiter and RoleViewer are incomparable.
	RoleRecruiter Role = "recruiter"
	RoleViewer    Role = "viewer"
)

// Hierarchy is a partial order over roles. Every role includes itself and
// the transitive closure of the roles it directly includes.
type Hierarchy struct {
	top     Role
	closure map[Role]map[Role]struct{}
}

// NewHierarchy builds a hierarchy from a role -> directly included roles table.
// Every role must appear as a key, the graph must be acyclic and top must
// include every other role.
func NewHierarchy(top Role, includes map[Role][]Role) (*Hierarchy, error) {
	if _, ok := includes[top]; !ok {
		return nil, fmt.Errorf("%w: top role %q", ErrUnknownRole, top)
	}
	for role, children := range includes {
		for _, child := range children {
			if _, ok := includes[child]; !ok {
				return nil, fmt.Errorf("%w: %q included by %q", ErrUnknownRole, child, role)
			}
		}
	}

	h := &Hierarchy{top: top, closure: make(map[Role]map[Role]struct{}, len(includes))}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[Role]int, len(includes))

	var visit func(Role) error
	visit = func(role Role) error {
		switch state[role] {
		case visiting:
			return fmt.Errorf("%w: at %q", ErrRoleCycle, role)
		case done:
			return nil
		}
		state[role] = visiting
		set := map[Role]struct{}{role: {}}
		for _, child := range includes[role] {
			if err := visit(child); err != nil {
				return err
			}
			for r := range h.closure[child] {
				set[r] = struct{}{}
			}
		}
		h.closure[role] = set
		state[role] = done
		return nil
	}

	for role := range includes {
		if err := visit(role); err != nil {
			return nil, err
		}
	}

	if len(h.closure[top]) != len(includes) {
		return nil, fmt.Errorf("%w: %q does not include every role", ErrInvalidHierarchy, top)
	}
	return h, nil
}

// Top returns the role that bypasses permission checks.
func (h *Hierarchy) Top() Role {
	return h.top
}

// IsTop reports whether role is the top of the hierarchy.
func (h *Hierarchy) IsTop(role Role) bool {
	return role == h.top
}

// Known reports whether role belongs to the hierarchy.
func (h *Hierarchy) Known(role Role) bool {
	_, ok := h.closure[role]
	return ok
}

// Includes reports whether have is at least as privileged as want.
// Unknown roles include nothing and are included by nothing.
func (h *Hierarchy) Includes(have, want Role) bool {
	set, ok := h.closure[have]
	if !ok {
		return false
	}
	_, ok = set[want]
	return ok
}

// Roles returns every role in the hierarchy in lexical order.
func (h *Hierarchy) Roles() []Role {
	roles := make([]Role, 0, len(h.closure))
	for r := range h.closure {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// ConsoleIncludes is the console ordering: company_manager < company_admin < super_admin.
var ConsoleIncludes = map[Role][]Role{
	RoleSuperAdmin:     {RoleCompanyAdmin},
	RoleCompanyAdmin:   {RoleCompanyManager},
	RoleCompanyManager: {},
}

// CustomerIncludes is the customer ordering. Recruiter and viewer are incomparable.
var CustomerIncludes = map[Role][]Role{
	RoleAdmin:     {RoleManager},
	RoleManager:   {RoleRecruiter, RoleViewer},
	RoleRecruiter: {},
	RoleViewer:    {},
}
