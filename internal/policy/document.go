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

package policy

import (
	"fmt"

	"github.com/opentrusty/staffgate/internal/authz"
	"github.com/opentrusty/staffgate/internal/process"
	"github.com/opentrusty/staffgate/internal/route"
)

func newDocument(v Variant, top authz.Role, includes map[authz.Role][]authz.Role, t *route.Table, gating bool) *Document {
	roles := make(map[string][]string, len(includes))
	for role, children := range includes {
		names := make([]string, 0, len(children))
		for _, c := range children {
			names = append(names, string(c))
		}
		roles[string(role)] = names
	}

	rules := make([]RuleDocument, 0, len(t.Rules))
	for _, r := range t.Rules {
		rd := RuleDocument{Prefix: r.Prefix, MinRole: string(r.MinRole), Requires: permissionStrings(r.Requires)}
		for _, e := range r.Elevations {
			rd.Elevations = append(rd.Elevations, ElevationDocument{Segments: e.Segments, Requires: permissionStrings(e.Requires)})
		}
		rules = append(rules, rd)
	}

	processes := make([]ProcessDocument, 0, len(t.Processes))
	for _, p := range t.Processes {
		processes = append(processes, ProcessDocument{Prefix: p.Prefix, Process: string(p.Process)})
	}

	return &Document{
		TopRole:       string(top),
		Roles:         roles,
		ProcessGating: &gating,
		Routes: RoutesDocument{
			Login:           t.LoginPath,
			Home:            t.HomePath,
			Selection:       t.SelectionPath,
			AccessDenied:    t.AccessDeniedPath,
			APIPrefix:       t.APIPrefix,
			AuthPages:       t.AuthPages,
			PublicPaths:     t.PublicPaths,
			PublicPrefixes:  t.PublicPrefixes,
			SelectionRoutes: t.SelectionRoutes,
			Rules:           rules,
			Processes:       processes,
		},
		variant: v,
	}
}

func (d *Document) merge(o *Document) {
	if o.TopRole != "" {
		d.TopRole = o.TopRole
	}
	if o.Roles != nil {
		d.Roles = o.Roles
	}
	if o.ProcessGating != nil {
		d.ProcessGating = o.ProcessGating
	}

	r, or := &d.Routes, &o.Routes
	setString(&r.Login, or.Login)
	setString(&r.Home, or.Home)
	setString(&r.Selection, or.Selection)
	setString(&r.AccessDenied, or.AccessDenied)
	setString(&r.APIPrefix, or.APIPrefix)
	setSlice(&r.AuthPages, or.AuthPages)
	setSlice(&r.PublicPaths, or.PublicPaths)
	setSlice(&r.PublicPrefixes, or.PublicPrefixes)
	setSlice(&r.SelectionRoutes, or.SelectionRoutes)
	setSlice(&r.Rules, or.Rules)
	setSlice(&r.Processes, or.Processes)
}

func (d *Document) build() (*Policy, error) {
	includes := make(map[authz.Role][]authz.Role, len(d.Roles))
	for role, children := range d.Roles {
		list := make([]authz.Role, 0, len(children))
		for _, c := range children {
			list = append(list, authz.Role(c))
		}
		includes[authz.Role(role)] = list
	}
	hierarchy, err := authz.NewHierarchy(authz.Role(d.TopRole), includes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}

	gating := d.ProcessGating != nil && *d.ProcessGating
	rd := d.Routes
	if rd.Login == "" || rd.Home == "" || rd.AccessDenied == "" {
		return nil, fmt.Errorf("%w: login, home and access_denied routes are required", ErrInvalidPolicy)
	}
	if gating && rd.Selection == "" {
		return nil, fmt.Errorf("%w: process gating requires a selection route", ErrInvalidPolicy)
	}

	table := &route.Table{
		LoginPath:        rd.Login,
		HomePath:         rd.Home,
		SelectionPath:    rd.Selection,
		AccessDeniedPath: rd.AccessDenied,
		APIPrefix:        rd.APIPrefix,
		AuthPages:        rd.AuthPages,
		PublicPaths:      rd.PublicPaths,
		PublicPrefixes:   rd.PublicPrefixes,
		SelectionRoutes:  rd.SelectionRoutes,
	}

	for _, r := range rd.Rules {
		rule := route.Rule{Prefix: r.Prefix, MinRole: authz.Role(r.MinRole)}
		if rule.MinRole != "" && !hierarchy.Known(rule.MinRole) {
			return nil, fmt.Errorf("%w: rule %s: %w: %q", ErrInvalidPolicy, r.Prefix, authz.ErrUnknownRole, r.MinRole)
		}
		if rule.Requires, err = parsePermissions(r.Requires); err != nil {
			return nil, fmt.Errorf("%w: rule %s: %w", ErrInvalidPolicy, r.Prefix, err)
		}
		for _, e := range r.Elevations {
			reqs, err := parsePermissions(e.Requires)
			if err != nil {
				return nil, fmt.Errorf("%w: rule %s: %w", ErrInvalidPolicy, r.Prefix, err)
			}
			rule.Elevations = append(rule.Elevations, route.Elevation{Segments: e.Segments, Requires: reqs})
		}
		table.Rules = append(table.Rules, rule)
	}

	for _, p := range rd.Processes {
		t, ok := process.Parse(p.Process)
		if !ok {
			return nil, fmt.Errorf("%w: unknown process %q", ErrInvalidPolicy, p.Process)
		}
		table.Processes = append(table.Processes, route.ProcessRoute{Prefix: p.Prefix, Process: t})
	}

	return &Policy{
		Variant:       d.variant,
		Evaluator:     authz.NewEvaluator(hierarchy),
		Routes:        table,
		ProcessGating: gating,
	}, nil
}

func permissionStrings(perms []authz.Permission) []string {
	if len(perms) == 0 {
		return nil
	}
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.String())
	}
	return out
}

func parsePermissions(in []string) ([]authz.Permission, error) {
	out := make([]authz.Permission, 0, len(in))
	for _, s := range in {
		p, err := authz.ParsePermission(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setSlice[T any](dst *[]T, v []T) {
	if v != nil {
		*dst = v
	}
}
