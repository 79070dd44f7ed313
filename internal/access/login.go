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
	"strings"
	"time"

	"github.com/opentrusty/staffgate/internal/audit"
	"github.com/opentrusty/staffgate/internal/directory"
	"github.com/opentrusty/staffgate/internal/identity"
	"github.com/opentrusty/staffgate/internal/observability/logger"
	"github.com/opentrusty/staffgate/internal/process"
	"github.com/opentrusty/staffgate/internal/session"
)

// LoginRequest carries a password sign-in attempt.
type LoginRequest struct {
	Email     string
	Password  string
	Remember  bool
	IPAddress string
	UserAgent string
	// RedirectTo is the page the user originally asked for. It is honoured
	// only when it is a local protected path.
	RedirectTo string
}

// LoginResult is a successful sign-in.
type LoginResult struct {
	Token      string
	Session    *session.Session
	Principal  *directory.Principal
	RedirectTo string
}

// Login verifies credentials, refuses identities the pipeline would reject
// and starts a session. Failures are audited as login_failed.
func (c *Controller) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if c.sessions == nil {
		return nil, errors.New("access: no session manager configured")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	failed := func(principalID, reason string, p *directory.Principal) {
		ev := audit.SecurityEvent{
			Type:           audit.TypeLoginFailed,
			PrincipalID:    principalID,
			PrincipalEmail: email,
			Resource:       "login",
			IPAddress:      req.IPAddress,
			UserAgent:      req.UserAgent,
			Metadata:       map[string]any{audit.AttrReason: reason},
		}
		if p != nil {
			ev.PrincipalRole = string(p.Role)
		}
		c.send(ctx, ev)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	principalID, err := c.identity.VerifyCredentials(lookupCtx, email, req.Password)
	switch {
	case errors.Is(err, identity.ErrAccountLocked):
		failed(principalID, reasonAccountLocked, nil)
		return nil, err
	case errors.Is(err, identity.ErrInvalidCredentials):
		failed(principalID, reasonBadCredentials, nil)
		return nil, err
	case err != nil:
		slog.ErrorContext(ctx, "credential verification failed", logger.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	p, err := c.directory.Lookup(lookupCtx, principalID)
	if errors.Is(err, directory.ErrNotFound) {
		c.send(ctx, audit.SecurityEvent{
			Type:           audit.TypeSuspiciousActivity,
			PrincipalID:    principalID,
			PrincipalEmail: email,
			Resource:       "login",
			IPAddress:      req.IPAddress,
			UserAgent:      req.UserAgent,
			Metadata:       map[string]any{audit.AttrReason: reasonDirectoryMiss},
		})
		return nil, ErrOrphanedIdentity
	}
	if err != nil {
		slog.ErrorContext(ctx, "directory lookup failed", logger.PrincipalID(principalID), logger.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	if !p.Active {
		failed(principalID, reasonInactive, p)
		return nil, ErrInactiveAccount
	}

	if c.policy.ProcessGating && p.Process.State() == process.SinglePermission {
		if next, err := c.processes.Resolve(ctx, p.ID, p.Process); err == nil {
			p.Process = next
		} else {
			slog.WarnContext(ctx, "failed to resolve single process", logger.PrincipalID(p.ID), logger.Error(err))
		}
	}

	token, sess, err := c.sessions.StartSession(ctx, p.ID, req.IPAddress, req.UserAgent, req.Remember)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	if c.logins != nil {
		if err := c.logins.RecordLogin(ctx, p.ID, c.now().UTC()); err != nil {
			slog.WarnContext(ctx, "failed to record last login", logger.PrincipalID(p.ID), logger.Error(err))
		}
	}

	c.send(ctx, audit.SecurityEvent{
		Type:           audit.TypeLogin,
		PrincipalID:    p.ID,
		PrincipalEmail: p.Email,
		PrincipalRole:  string(p.Role),
		Resource:       "session",
		ResourceID:     sess.ID,
		Success:        true,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
		Metadata:       map[string]any{audit.AttrRemember: req.Remember},
	})

	slog.InfoContext(ctx, "principal signed in",
		logger.PrincipalID(p.ID),
		logger.Role(string(p.Role)),
		logger.SessionID(sess.ID),
	)

	return &LoginResult{
		Token:      token,
		Session:    sess,
		Principal:  p,
		RedirectTo: c.afterLogin(p, req.RedirectTo),
	}, nil
}

// afterLogin honours a requested local path, otherwise the landing page.
func (c *Controller) afterLogin(p *directory.Principal, requested string) string {
	landing := c.Landing(p)
	if requested == "" || !strings.HasPrefix(requested, "/") || strings.HasPrefix(requested, "//") || strings.Contains(requested, `\`) {
		return landing
	}
	cl := c.policy.Routes.Classify(requested)
	if !cl.Protected() || cl.API {
		return landing
	}
	if c.policy.ProcessGating {
		if cl.Process != "" && !p.Process.Has(cl.Process) {
			return landing
		}
		if _, ok := p.Process.Effective(); !ok {
			return landing
		}
	}
	return cl.Path
}

// Logout ends the session named by token. It succeeds for unknown or
// already ended sessions.
func (c *Controller) Logout(ctx context.Context, token, ipAddress, userAgent string) error {
	if c.sessions == nil {
		return errors.New("access: no session manager configured")
	}

	principalID, err := c.sessions.EndSession(ctx, token)
	if err != nil {
		slog.WarnContext(ctx, "failed to end session", logger.PrincipalID(principalID), logger.Error(err))
		return fmt.Errorf("failed to end session: %w", err)
	}
	if principalID == "" {
		return nil
	}

	c.send(ctx, audit.SecurityEvent{
		Type:        audit.TypeLogout,
		PrincipalID: principalID,
		Resource:    "session",
		Success:     true,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
	})
	return nil
}

// CookieMaxAge returns how long the session cookie of result should live.
func (c *Controller) CookieMaxAge(result *LoginResult) time.Duration {
	if result == nil || result.Session == nil {
		return 0
	}
	return result.Session.ExpiresAt.Sub(c.now())
}
