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

package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opentrusty/staffgate/internal/audit"
	"github.com/opentrusty/staffgate/internal/directory"
	"github.com/opentrusty/staffgate/internal/observability/logger"
	"github.com/opentrusty/staffgate/internal/process"
)

// ErrProcessGatingDisabled is returned by process operations on a variant
// without business processes.
var ErrProcessGatingDisabled = errors.New("process selection is not available")

// Selection is the result of a committed process selection.
type Selection struct {
	Permission process.Permission
	RedirectTo string
}

// SelectProcess commits candidate as the current process of principalID.
// A candidate outside the principal's permissions fails with
// ErrProcessSelectionDenied and leaves the stored selection untouched.
func (c *Controller) SelectProcess(ctx context.Context, principalID string, candidate process.Type, req Request, remember bool) (*Selection, error) {
	return c.commit(ctx, principalID, candidate, req, audit.TypeProcessSelected, remember)
}

// SwitchProcess moves a principal to another process it holds. It differs
// from SelectProcess only in the audit trail.
func (c *Controller) SwitchProcess(ctx context.Context, principalID string, candidate process.Type, req Request) (*Selection, error) {
	return c.commit(ctx, principalID, candidate, req, audit.TypeProcessSwitched, false)
}

func (c *Controller) commit(ctx context.Context, principalID string, candidate process.Type, req Request, eventType string, remember bool) (*Selection, error) {
	if !c.policy.ProcessGating {
		return nil, ErrProcessGatingDisabled
	}

	p, err := c.lookupActive(ctx, principalID)
	if err != nil {
		return nil, err
	}

	previous, _ := p.Process.Effective()
	next, err := c.processes.Select(ctx, p.ID, p.Process, candidate)
	if errors.Is(err, process.ErrPermissionDenied) {
		c.send(ctx, audit.SecurityEvent{
			Type:           audit.TypeSuspiciousActivity,
			PrincipalID:    p.ID,
			PrincipalEmail: p.Email,
			PrincipalRole:  string(p.Role),
			Resource:       "process",
			ResourceID:     string(candidate),
			Action:         eventType,
			IPAddress:      req.IPAddress,
			UserAgent:      req.UserAgent,
			Metadata: map[string]any{
				audit.AttrReason:  reasonProcessRejected,
				audit.AttrProcess: string(candidate),
			},
		})
		return nil, fmt.Errorf("%w: %w", ErrProcessSelectionDenied, err)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to commit process selection",
			logger.PrincipalID(p.ID),
			logger.Process(string(candidate)),
			logger.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	c.send(ctx, audit.SecurityEvent{
		Type:           eventType,
		PrincipalID:    p.ID,
		PrincipalEmail: p.Email,
		PrincipalRole:  string(p.Role),
		Resource:       "process",
		ResourceID:     string(candidate),
		Success:        true,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
		Metadata: map[string]any{
			audit.AttrFrom:     string(previous),
			audit.AttrTo:       string(candidate),
			audit.AttrRemember: remember,
		},
	})

	return &Selection{
		Permission: next,
		RedirectTo: process.DashboardPath(candidate),
	}, nil
}

// ProcessContext summarises the process state of p for clients.
func (c *Controller) ProcessContext(p *directory.Principal) process.Context {
	if p == nil {
		return process.Permission{}.Context(c.policy.Routes.SelectionPath)
	}
	return p.Process.Context(c.policy.Routes.SelectionPath)
}

func (c *Controller) lookupActive(ctx context.Context, principalID string) (*directory.Principal, error) {
	if principalID == "" {
		return nil, ErrUnauthenticated
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	p, err := c.directory.Lookup(lookupCtx, principalID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, ErrOrphanedIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	if !p.Active {
		return nil, ErrInactiveAccount
	}
	return p, nil
}
