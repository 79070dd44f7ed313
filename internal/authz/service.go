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
	"reflect"
	"slices"
)

// Evaluator answers permission questions for a single role hierarchy.
// All methods are pure.
type Evaluator struct {
	hierarchy *Hierarchy
}

// NewEvaluator creates a new evaluator
func NewEvaluator(h *Hierarchy) *Evaluator {
	return &Evaluator{hierarchy: h}
}

// Hierarchy returns the role ordering the evaluator uses.
func (e *Evaluator) Hierarchy() *Hierarchy {
	return e.hierarchy
}

// CanAccess decides whether s may perform action on resource within companyID.
// The top role bypasses grants; everyone else needs a satisfying grant.
func (e *Evaluator) CanAccess(s Subject, resource Resource, action Action, companyID string) bool {
	if isNil(s) {
		return false
	}
	if e.hierarchy.IsTop(s.SubjectRole()) {
		return true
	}
	for _, g := range s.SubjectGrants() {
		if g.Satisfies(resource, action, companyID) {
			return true
		}
	}
	return false
}

// CanAccessAll requires every permission. An empty list is satisfied.
func (e *Evaluator) CanAccessAll(s Subject, required []Permission, companyID string) bool {
	for _, p := range required {
		if !e.CanAccess(s, p.Resource, p.Action, companyID) {
			return false
		}
	}
	return true
}

// HasRole reports whether s holds required or a role that includes it.
func (e *Evaluator) HasRole(s Subject, required Role) bool {
	if isNil(s) {
		return false
	}
	return e.hierarchy.Includes(s.SubjectRole(), required)
}

// CanActFor reports whether s may act within companyID given its company
// affiliations. An empty affiliation set means "all companies" for the top
// role only.
func (e *Evaluator) CanActFor(s Subject, affiliations []string, companyID string) bool {
	if isNil(s) {
		return false
	}
	if e.hierarchy.IsTop(s.SubjectRole()) {
		return true
	}
	if companyID == "" {
		return true
	}
	return slices.Contains(affiliations, companyID)
}

func isNil(s Subject) bool {
	if s == nil {
		return true
	}
	v := reflect.ValueOf(s)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
