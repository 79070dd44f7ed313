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
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrUnknownRole       = errors.New("unknown role")
	ErrRoleCycle         = errors.New("role hierarchy contains a cycle")
	ErrInvalidHierarchy  = errors.New("invalid role hierarchy")
	ErrInvalidPermission = errors.New("invalid permission")
)

// Role is a named privilege tier. Ordering between roles is defined by a Hierarchy.
type Role string

// Resource is the noun a permission grant targets.
type Resource string

// Action is the verb a permission grant targets.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage:
		return true
	}
	return false
}

const (
	ResourceEnums     Resource = "enums"
	ResourceCompanies Resource = "companies"
	ResourceUsers     Resource = "users"
	ResourceSettings  Resource = "settings"
	ResourceAuditLogs Resource = "audit_logs"
	ResourceAnalytics Resource = "analytics"
)

// Permission is a single (resource, action) requirement.
type Permission struct {
	Resource Resource
	Action   Action
}

func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// ParsePermission parses the "resource:action" form produced by Permission.String.
func ParsePermission(s string) (Permission, error) {
	resource, action, ok := strings.Cut(s, ":")
	if !ok || resource == "" || !Action(action).Valid() {
		return Permission{}, fmt.Errorf("%w: %q", ErrInvalidPermission, s)
	}
	return Permission{Resource: Resource(resource), Action: Action(action)}, nil
}

// Grant is an explicit permission record. An empty CompanyID means the grant
// is not narrowed to a company.
type Grant struct {
	Resource  Resource
	Actions   []Action
	CompanyID string
}

// Satisfies reports whether the grant covers action on resource within companyID.
// A request that carries no company scope is satisfied by scoped grants too.
func (g Grant) Satisfies(resource Resource, action Action, companyID string) bool {
	if g.Resource != resource {
		return false
	}
	if !slices.Contains(g.Actions, action) {
		return false
	}
	return g.CompanyID == "" || companyID == "" || g.CompanyID == companyID
}

// Subject is anything the evaluator can reason about.
type Subject interface {
	SubjectRole() Role
	SubjectGrants() []Grant
}
