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

// Package policy assembles the static access policy of one application
// variant: role hierarchy, route table and whether process gating applies.
// It is loaded once at startup.
package policy

import (
	"errors"
	"fmt"
	"os"

	"github.com/opentrusty/staffgate/internal/authz"
	"github.com/opentrusty/staffgate/internal/route"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownVariant = errors.New("unknown application variant")
	ErrInvalidPolicy  = errors.New("invalid policy")
)

// Variant selects which application the binary serves.
type Variant string

const (
	Console  Variant = "console"
	Customer Variant = "customer"
)

// Policy is the immutable access policy.
type Policy struct {
	Variant       Variant
	Evaluator     *authz.Evaluator
	Routes        *route.Table
	ProcessGating bool
}

// Hierarchy returns the role ordering of the policy.
func (p *Policy) Hierarchy() *authz.Hierarchy {
	return p.Evaluator.Hierarchy()
}

// Default returns the built-in policy of v.
func Default(v Variant) (*Policy, error) {
	doc, err := defaultDocument(v)
	if err != nil {
		return nil, err
	}
	return doc.build()
}

// Load returns the built-in policy of v, overridden by the YAML file at path
// when path is not empty. Every key present in the file replaces the
// corresponding default wholesale; lists and the role table are not merged.
func Load(v Variant, path string) (*Policy, error) {
	doc, err := defaultDocument(v)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return doc.build()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	var overlay Document
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	doc.merge(&overlay)
	return doc.build()
}

func defaultDocument(v Variant) (*Document, error) {
	switch v {
	case Console:
		return newDocument(v, authz.RoleSuperAdmin, authz.ConsoleIncludes, route.ConsoleTable(), false), nil
	case Customer:
		return newDocument(v, authz.RoleAdmin, authz.CustomerIncludes, route.CustomerTable(), true), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, v)
}

// Document is the YAML form of a policy.
type Document struct {
	TopRole       string              `yaml:"top_role"`
	Roles         map[string][]string `yaml:"roles"`
	ProcessGating *bool               `yaml:"process_gating"`
	Routes        RoutesDocument      `yaml:"routes"`

	variant Variant
}

// RoutesDocument is the YAML form of a route table.
type RoutesDocument struct {
	Login           string            `yaml:"login"`
	Home            string            `yaml:"home"`
	Selection       string            `yaml:"selection"`
	AccessDenied    string            `yaml:"access_denied"`
	APIPrefix       string            `yaml:"api_prefix"`
	AuthPages       []string          `yaml:"auth_pages"`
	PublicPaths     []string          `yaml:"public_paths"`
	PublicPrefixes  []string          `yaml:"public_prefixes"`
	SelectionRoutes []string          `yaml:"selection_routes"`
	Rules           []RuleDocument    `yaml:"rules"`
	Processes       []ProcessDocument `yaml:"processes"`
}

type RuleDocument struct {
	Prefix     string              `yaml:"prefix"`
	MinRole    string              `yaml:"min_role,omitempty"`
	Requires   []string            `yaml:"requires,omitempty"`
	Elevations []ElevationDocument `yaml:"elevations,omitempty"`
}

type ElevationDocument struct {
	Segments []string `yaml:"segments"`
	Requires []string `yaml:"requires"`
}

type ProcessDocument struct {
	Prefix  string `yaml:"prefix"`
	Process string `yaml:"process"`
}
