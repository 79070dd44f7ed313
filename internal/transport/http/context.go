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

package http

import (
	"context"

	"github.com/opentrusty/staffgate/internal/access"
	"github.com/opentrusty/staffgate/internal/directory"
)

type contextKey string

const decisionKey contextKey = "access_decision"

func withDecision(ctx context.Context, d access.Decision) context.Context {
	return context.WithValue(ctx, decisionKey, d)
}

// GetDecision retrieves the access decision made for the request.
func GetDecision(ctx context.Context) (access.Decision, bool) {
	d, ok := ctx.Value(decisionKey).(access.Decision)
	return d, ok
}

// GetPrincipal retrieves the authenticated principal from context.
func GetPrincipal(ctx context.Context) *directory.Principal {
	if d, ok := GetDecision(ctx); ok {
		return d.Principal
	}
	return nil
}

// GetPrincipalID retrieves the authenticated principal id from context.
func GetPrincipalID(ctx context.Context) string {
	if p := GetPrincipal(ctx); p != nil {
		return p.ID
	}
	return ""
}
