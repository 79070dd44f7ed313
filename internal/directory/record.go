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

package directory

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/opentrusty/staffgate/internal/authz"
	"github.com/opentrusty/staffgate/internal/process"
)

// Record is a directory row as it is stored. Process membership has been
// written in two places over time: the top-level columns and a nested
// profile document. Normalize merges both.
type Record struct {
	ID                 string
	Email              string
	Role               string
	CompanyID          string
	CompanyIDs         []string
	Active             bool
	ProcessPermissions []string
	CurrentProcess     string
	Profile            []byte
	Grants             []GrantRecord
	LastLoginAt        *time.Time
}

// GrantRecord is a stored permission grant.
type GrantRecord struct {
	Resource  string
	Actions   []string
	CompanyID string
}

// profileDocument is the subset of the profile JSON that carries process data.
type profileDocument struct {
	ProcessPermissions []string `json:"process_permissions"`
	CurrentProcess     string   `json:"current_process"`
}

// Normalize converts a stored record into the canonical Principal.
//
// Allowed processes are the union of the top-level and profile values in
// that order, with unknown names dropped. The top-level current process wins
// over the profile one. The current value is kept as read even when it is
// not a member; process.Permission treats such a value as unset. Stored
// holds the top-level value alone, since conditional writes compare against
// that column.
func Normalize(r Record) (*Principal, error) {
	if strings.TrimSpace(r.ID) == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}

	var profile profileDocument
	if len(r.Profile) > 0 {
		if err := json.Unmarshal(r.Profile, &profile); err != nil {
			slog.Warn("ignoring malformed directory profile",
				slog.String("principal_id", r.ID),
				slog.String("error", err.Error()),
			)
			profile = profileDocument{}
		}
	}

	p := &Principal{
		ID:          r.ID,
		Email:       r.Email,
		Role:        authz.Role(strings.TrimSpace(r.Role)),
		CompanyIDs:  companies(r.CompanyID, r.CompanyIDs),
		Grants:      grants(r.Grants),
		Active:      r.Active,
		LastLoginAt: r.LastLoginAt,
	}

	p.Process.Allowed = processes(r.ProcessPermissions, profile.ProcessPermissions)

	current := r.CurrentProcess
	if current == "" {
		current = profile.CurrentProcess
	}
	p.Process.Current = process.Type(current)
	p.Process.Stored = process.Type(r.CurrentProcess)

	return p, nil
}

func processes(sources ...[]string) []process.Type {
	var out []process.Type
	for _, src := range sources {
		for _, raw := range src {
			t, ok := process.Parse(raw)
			if !ok || slices.Contains(out, t) {
				continue
			}
			out = append(out, t)
		}
	}
	return out
}

func companies(primary string, rest []string) []string {
	var out []string
	for _, c := range append([]string{primary}, rest...) {
		c = strings.TrimSpace(c)
		if c == "" || slices.Contains(out, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func grants(records []GrantRecord) []authz.Grant {
	out := make([]authz.Grant, 0, len(records))
	for _, r := range records {
		if r.Resource == "" {
			continue
		}
		g := authz.Grant{Resource: authz.Resource(r.Resource), CompanyID: r.CompanyID}
		for _, a := range r.Actions {
			if action := authz.Action(a); action.Valid() && !slices.Contains(g.Actions, action) {
				g.Actions = append(g.Actions, action)
			}
		}
		if len(g.Actions) > 0 {
			out = append(out, g)
		}
	}
	return out
}
