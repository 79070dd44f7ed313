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

package route

import (
	"github.com/opentrusty/staffgate/internal/authz"
	"github.com/opentrusty/staffgate/internal/process"
)

const (
	LoginPath        = "/login"
	HomePath         = "/dashboard"
	SelectionPath    = "/select-process"
	AccessDeniedPath = "/access-denied"
	APIPrefix        = "/api"
)

func read(r authz.Resource) authz.Permission {
	return authz.Permission{Resource: r, Action: authz.ActionRead}
}

// ConsoleTable is the route table of the internal console.
func ConsoleTable() *Table {
	return &Table{
		LoginPath:        LoginPath,
		HomePath:         HomePath,
		AccessDeniedPath: AccessDeniedPath,
		APIPrefix:        APIPrefix,
		AuthPages:        []string{"/login", "/register", "/forgot-password", "/verify-email"},
		PublicPaths:      []string{"/", "/health"},
		PublicPrefixes:   []string{"/api/auth"},
		Rules: []Rule{
			{
				Prefix:   "/enums",
				Requires: []authz.Permission{read(authz.ResourceEnums)},
				Elevations: []Elevation{{
					Segments: []string{"create", "edit"},
					Requires: []authz.Permission{{Resource: authz.ResourceEnums, Action: authz.ActionCreate}},
				}},
			},
			{
				Prefix:   "/companies",
				Requires: []authz.Permission{read(authz.ResourceCompanies)},
				Elevations: []Elevation{{
					Segments: []string{"create", "edit"},
					Requires: []authz.Permission{{Resource: authz.ResourceCompanies, Action: authz.ActionManage}},
				}},
			},
			{
				Prefix:   "/users",
				Requires: []authz.Permission{read(authz.ResourceUsers)},
				Elevations: []Elevation{{
					Segments: []string{"invite", "manage"},
					Requires: []authz.Permission{{Resource: authz.ResourceUsers, Action: authz.ActionManage}},
				}},
			},
			{
				Prefix:   "/settings",
				Requires: []authz.Permission{read(authz.ResourceSettings)},
				Elevations: []Elevation{{
					Segments: []string{"edit"},
					Requires: []authz.Permission{{Resource: authz.ResourceSettings, Action: authz.ActionUpdate}},
				}},
			},
			{Prefix: "/audit-logs", Requires: []authz.Permission{read(authz.ResourceAuditLogs)}},
			{Prefix: "/analytics", Requires: []authz.Permission{read(authz.ResourceAnalytics)}},
		},
	}
}

// CustomerTable is the route table of the customer application.
func CustomerTable() *Table {
	return &Table{
		LoginPath:        LoginPath,
		HomePath:         HomePath,
		SelectionPath:    SelectionPath,
		AccessDeniedPath: AccessDeniedPath,
		APIPrefix:        APIPrefix,
		AuthPages:        []string{"/login", "/register", "/activate", "/reset-password"},
		PublicPaths:      []string{"/", "/about", "/contact", "/logout", "/health"},
		PublicPrefixes:   []string{"/api/auth"},
		SelectionRoutes:  []string{"/api/set-process", "/api/user/switch-process"},
		Rules: []Rule{
			{Prefix: "/settings/users", MinRole: authz.RoleManager},
			{Prefix: "/settings/company", MinRole: authz.RoleManager},
		},
		Processes: []ProcessRoute{
			{Prefix: "/recruitment", Process: process.Recruitment},
			{Prefix: "/bench-sales", Process: process.BenchSales},
			{Prefix: "/dashboard/recruitment", Process: process.Recruitment},
			{Prefix: "/dashboard/bench-sales", Process: process.BenchSales},
		},
	}
}
