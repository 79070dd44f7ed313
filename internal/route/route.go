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

// Package route maps request paths to their access requirements using an
// explicit prefix table. Matching is segment aware: "/enums" matches
// "/enums" and "/enums/42" but not "/enumsx".
package route

import (
	"path"
	"slices"
	"strings"

	"github.com/opentrusty/staffgate/internal/authz"
	"github.com/opentrusty/staffgate/internal/process"
)

// Elevation adds requirements when any of Segments appears in the path
// below the rule prefix (e.g. "edit" in /enums/42/edit).
type Elevation struct {
	Segments []string
	Requires []authz.Permission
}

// Rule is a protected prefix and what it takes to reach it.
type Rule struct {
	Prefix     string
	MinRole    authz.Role
	Requires   []authz.Permission
	Elevations []Elevation
}

// ProcessRoute scopes a prefix to a business process.
type ProcessRoute struct {
	Prefix  string
	Process process.Type
}

// Table is the static route configuration of one application.
type Table struct {
	LoginPath        string
	HomePath         string
	SelectionPath    string
	AccessDeniedPath string
	APIPrefix        string

	AuthPages       []string
	PublicPaths     []string
	PublicPrefixes  []string
	SelectionRoutes []string
	Rules           []Rule
	Processes       []ProcessRoute
}

// Classification is the result of classifying one path.
type Classification struct {
	Path         string
	AuthPage     bool
	Public       bool
	API          bool
	Selection    bool
	AccessDenied bool
	Process      process.Type
	MinRole      authz.Role
	Required     []authz.Permission
	// Matched is false when no rule covers the path. Such paths are still
	// protected and require authentication only.
	Matched bool
}

// Protected reports whether the path requires an authenticated principal.
func (c Classification) Protected() bool {
	return !c.AuthPage && !c.Public && !c.AccessDenied
}

// SelectionPage reports whether the path is the selection page itself.
func (c Classification) SelectionPage(t *Table) bool {
	return t.SelectionPath != "" && c.Path == t.SelectionPath
}

// Classify maps p to its requirements. It never fails: unknown paths are
// protected with no extra permission.
func (t *Table) Classify(p string) Classification {
	p = Normalize(p)
	c := Classification{Path: p}

	c.API = t.APIPrefix != "" && hasSegmentPrefix(p, t.APIPrefix)
	c.AccessDenied = t.AccessDeniedPath != "" && p == t.AccessDeniedPath
	c.AuthPage = matchesAny(p, t.AuthPages)
	c.Public = slices.Contains(t.PublicPaths, p) || matchesAny(p, t.PublicPrefixes)
	c.Selection = (t.SelectionPath != "" && p == t.SelectionPath) || matchesAny(p, t.SelectionRoutes)

	for _, pr := range t.Processes {
		if hasSegmentPrefix(p, pr.Prefix) {
			c.Process = pr.Process
			break
		}
	}

	rule, ok := t.longestRule(p)
	if !ok {
		return c
	}

	c.Matched = true
	c.MinRole = rule.MinRole
	c.Required = append(c.Required, rule.Requires...)

	rest := strings.Split(strings.TrimPrefix(p, rule.Prefix), "/")
	for _, e := range rule.Elevations {
		if containsAny(rest, e.Segments) {
			c.Required = appendUnique(c.Required, e.Requires...)
		}
	}
	return c
}

func (t *Table) longestRule(p string) (Rule, bool) {
	best := -1
	for i, r := range t.Rules {
		if !hasSegmentPrefix(p, r.Prefix) {
			continue
		}
		if best < 0 || len(r.Prefix) > len(t.Rules[best].Prefix) {
			best = i
		}
	}
	if best < 0 {
		return Rule{}, false
	}
	return t.Rules[best], true
}

// Normalize cleans p into an absolute path without a trailing slash.
func Normalize(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

func hasSegmentPrefix(p, prefix string) bool {
	if prefix == "" {
		return false
	}
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return p == "/"
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

func matchesAny(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if hasSegmentPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func containsAny(segments, wanted []string) bool {
	for _, s := range segments {
		if s != "" && slices.Contains(wanted, s) {
			return true
		}
	}
	return false
}

func appendUnique(dst []authz.Permission, src ...authz.Permission) []authz.Permission {
	for _, p := range src {
		if !slices.Contains(dst, p) {
			dst = append(dst, p)
		}
	}
	return dst
}
