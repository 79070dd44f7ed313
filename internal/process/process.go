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
	"slices"
	"strings"
)

// Type is a business process a customer principal can operate in.
type Type string

const (
	Recruitment Type = "recruitment"
	BenchSales  Type = "bench_sales"
)

// All lists the known processes in display order.
var All = []Type{Recruitment, BenchSales}

// Valid reports whether t is a known process.
func (t Type) Valid() bool {
	return slices.Contains(All, t)
}

// Slug is the URL form of t (bench_sales -> bench-sales).
func (t Type) Slug() string {
	return strings.ReplaceAll(string(t), "_", "-")
}

// Parse accepts either the stored form or the URL slug.
func Parse(s string) (Type, bool) {
	t := Type(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	return t, t.Valid()
}

// ParseSlug accepts only the URL form of a process, so bench_sales in a
// path is not a process.
func ParseSlug(s string) (Type, bool) {
	t, ok := Parse(s)
	if !ok || t.Slug() != s {
		return "", false
	}
	return t, true
}

// DashboardPath is the landing page of a process.
func DashboardPath(t Type) string {
	return "/" + t.Slug() + "/dashboard"
}

// State is the selection state of a principal.
type State int

const (
	// NoAccess is terminal: the principal holds no process.
	NoAccess State = iota
	// SinglePermission resolves itself on first observation.
	SinglePermission
	// SelectionPending gates every protected route except selection.
	SelectionPending
	// Resolved means Current is set and is a member of Allowed.
	Resolved
)

func (s State) String() string {
	switch s {
	case NoAccess:
		return "no_access"
	case SinglePermission:
		return "single_permission"
	case SelectionPending:
		return "selection_pending"
	case Resolved:
		return "resolved"
	}
	return "unknown"
}

// Permission is the process membership of a principal. Allowed is assigned at
// provisioning. A Current outside Allowed is treated as unset.
type Permission struct {
	Allowed []Type
	Current Type
	// Stored is the persisted current process that conditional writes
	// compare against. It differs from Current when Current was read from a
	// fallback source.
	Stored Type
}

// Has reports whether t is in the allowed set.
func (p Permission) Has(t Type) bool {
	return t != "" && slices.Contains(p.Allowed, t)
}

// State derives the selection state.
func (p Permission) State() State {
	switch {
	case len(p.Allowed) == 0:
		return NoAccess
	case p.Has(p.Current):
		return Resolved
	case len(p.Allowed) == 1:
		return SinglePermission
	default:
		return SelectionPending
	}
}

// Effective returns the process the principal is operating in, if any.
func (p Permission) Effective() (Type, bool) {
	switch p.State() {
	case Resolved:
		return p.Current, true
	case SinglePermission:
		return p.Allowed[0], true
	}
	return "", false
}

// Landing returns the default page for the principal: the effective process
// dashboard, the selection page, or the access-denied terminal.
func (p Permission) Landing(selectionPath, accessDeniedPath string) string {
	if t, ok := p.Effective(); ok {
		return DashboardPath(t)
	}
	if p.State() == NoAccess {
		return accessDeniedPath
	}
	return selectionPath
}

// Context is the process summary returned to clients.
type Context struct {
	CurrentProcess     Type   `json:"current_process"`
	AvailableProcesses []Type `json:"available_processes"`
	CanSwitchProcess   bool   `json:"can_switch_process"`
	SwitchURL          string `json:"switch_url"`
}

// Context summarises p for the process API.
func (p Permission) Context(switchURL string) Context {
	current, _ := p.Effective()
	available := p.Allowed
	if available == nil {
		available = []Type{}
	}
	return Context{
		CurrentProcess:     current,
		AvailableProcesses: available,
		CanSwitchProcess:   len(p.Allowed) > 1,
		SwitchURL:          switchURL,
	}
}
