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

// Package access is the single entry point for access decisions. Every route
// asks the Controller instead of checking roles, grants or process state on
// its own.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opentrusty/staffgate/internal/audit"
	"github.com/opentrusty/staffgate/internal/directory"
	"github.com/opentrusty/staffgate/internal/observability/logger"
	"github.com/opentrusty/staffgate/internal/policy"
	"github.com/opentrusty/staffgate/internal/process"
	"github.com/opentrusty/staffgate/internal/ratelimit"
	"github.com/opentrusty/staffgate/internal/route"
	"github.com/opentrusty/staffgate/internal/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultUpstreamTimeout bounds each identity and directory call.
const DefaultUpstreamTimeout = 5 * time.Second

// IdentityProvider authenticates credentials and session tokens.
type IdentityProvider interface {
	VerifyCredentials(ctx context.Context, email, password string) (string, error)
	// ResolvePrincipalFromSession returns "" with a nil error for a token
	// that does not name a live session.
	ResolvePrincipalFromSession(ctx context.Context, token string) (string, error)
}

// SessionManager starts and ends sessions.
type SessionManager interface {
	StartSession(ctx context.Context, principalID, ipAddress, userAgent string, remember bool) (string, *session.Session, error)
	EndSession(ctx context.Context, token string) (string, error)
}

// UserDirectory resolves principals.
type UserDirectory interface {
	Lookup(ctx context.Context, principalID string) (*directory.Principal, error)
}

// Dependencies are the collaborators of a Controller. Logins, Tracer and
// Meter are optional.
type Dependencies struct {
	Policy    *policy.Policy
	Identity  IdentityProvider
	Sessions  SessionManager
	Directory UserDirectory
	Logins    directory.LoginRecorder
	Processes *process.Service
	Limiter   *ratelimit.Limiter
	Audit     audit.Emitter
	Tracer    trace.Tracer
	Meter     metric.Meter
}

// Config tunes the controller.
type Config struct {
	UpstreamTimeout time.Duration
}

// Controller evaluates requests against the static policy.
type Controller struct {
	policy    *policy.Policy
	identity  IdentityProvider
	sessions  SessionManager
	directory UserDirectory
	logins    directory.LoginRecorder
	processes *process.Service
	limiter   *ratelimit.Limiter
	auditor   audit.Emitter
	tracer    trace.Tracer
	decisions metric.Int64Counter
	timeout   time.Duration
	now       func() time.Time
}

// NewController creates a new access controller
func NewController(deps Dependencies, cfg Config) (*Controller, error) {
	if deps.Policy == nil || deps.Identity == nil || deps.Directory == nil || deps.Processes == nil || deps.Limiter == nil || deps.Audit == nil {
		return nil, errors.New("access: policy, identity, directory, processes, limiter and audit are required")
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = DefaultUpstreamTimeout
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("")
	}
	meter := deps.Meter
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter("")
	}
	decisions, err := meter.Int64Counter(
		"staffgate_access_decisions_total",
		metric.WithDescription("Access decisions by outcome and code"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision counter: %w", err)
	}

	return &Controller{
		policy:    deps.Policy,
		identity:  deps.Identity,
		sessions:  deps.Sessions,
		directory: deps.Directory,
		logins:    deps.Logins,
		processes: deps.Processes,
		limiter:   deps.Limiter,
		auditor:   deps.Audit,
		tracer:    tracer,
		decisions: decisions,
		timeout:   cfg.UpstreamTimeout,
		now:       time.Now,
	}, nil
}

// Policy returns the policy the controller enforces.
func (c *Controller) Policy() *policy.Policy {
	return c.policy
}

// Evaluate decides what happens to req. It never fails open: any identity or
// directory failure yields a 503 outcome.
func (c *Controller) Evaluate(ctx context.Context, req Request) Decision {
	ctx, span := c.tracer.Start(ctx, "access.Evaluate", trace.WithAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("staffgate.variant", string(c.policy.Variant)),
	))
	defer span.End()

	d := c.evaluate(ctx, req)

	attrs := []attribute.KeyValue{
		attribute.String("outcome", d.Outcome.Kind.String()),
		attribute.String("code", d.Outcome.Code),
	}
	c.decisions.Add(ctx, 1, metric.WithAttributes(attrs...))
	span.SetAttributes(attrs...)
	if d.Outcome.Kind == Status && d.Outcome.Status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, d.Outcome.Code)
	}
	return d
}

type identityState int

const (
	anonymous identityState = iota
	staleSession
	orphaned
	inactive
	active
)

type resolved struct {
	state       identityState
	principalID string
	principal   *directory.Principal
}

func (c *Controller) resolve(ctx context.Context, token string) (resolved, error) {
	if token == "" {
		return resolved{state: anonymous}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	principalID, err := c.identity.ResolvePrincipalFromSession(ctx, token)
	if err != nil {
		return resolved{}, fmt.Errorf("%w: session: %w", ErrUpstreamUnavailable, err)
	}
	if principalID == "" {
		return resolved{state: staleSession}, nil
	}

	p, err := c.directory.Lookup(ctx, principalID)
	if errors.Is(err, directory.ErrNotFound) {
		return resolved{state: orphaned, principalID: principalID}, nil
	}
	if err != nil {
		return resolved{}, fmt.Errorf("%w: directory: %w", ErrUpstreamUnavailable, err)
	}
	if !p.Active {
		return resolved{state: inactive, principalID: principalID, principal: p}, nil
	}
	return resolved{state: active, principalID: principalID, principal: p}, nil
}

func (c *Controller) evaluate(ctx context.Context, req Request) Decision {
	routes := c.policy.Routes
	cl := routes.Classify(req.Path)
	d := Decision{Route: cl, Outcome: allow()}

	if cl.AccessDenied {
		return d
	}

	who, err := c.resolve(ctx, req.SessionToken)
	if err != nil {
		slog.ErrorContext(ctx, "access decision failed",
			logger.Path(cl.Path),
			logger.Method(req.Method),
			logger.Error(err),
		)
		d.Outcome = upstreamFailure(err)
		return d
	}

	// Public pages carry no principal data; a rejected identity is simply
	// treated as anonymous there.
	if cl.Public {
		if who.state == active {
			d.Principal = who.principal
		}
		d.Outcome = c.limit(ctx, req, cl, d.Principal)
		d.Outcome.ClearSession = who.state != anonymous && who.state != active
		return d
	}

	switch who.state {
	case anonymous, staleSession:
		if !cl.AuthPage {
			d.Outcome = loginRedirect(routes, cl)
		}
		d.Outcome.ClearSession = who.state == staleSession
		return d

	case orphaned:
		c.emit(ctx, req, cl, nil, who.principalID, audit.TypeSuspiciousActivity, reasonDirectoryMiss)
		d.Outcome = deny(cl, routes.AccessDeniedPath, http.StatusForbidden, ErrOrphanedIdentity, CodeAccessDenied)
		d.Outcome.ClearSession = true
		return d

	case inactive:
		c.emit(ctx, req, cl, who.principal, who.principalID, audit.TypeLoginFailed, reasonInactive)
		d.Outcome = deny(cl, withQuery(routes.LoginPath, "error", CodeAccountInactive), http.StatusUnauthorized, ErrInactiveAccount, CodeAccountInactive)
		d.Outcome.ClearSession = true
		return d
	}

	p := who.principal
	d.Principal = p
	if c.policy.ProcessGating {
		d.ProcessState = p.Process.State()
	}

	if cl.AuthPage {
		d.Outcome = redirectTo(c.Landing(p), nil, "")
		return d
	}

	if !c.permitted(p, cl, req.CompanyID) {
		c.emit(ctx, req, cl, p, p.ID, audit.TypeSuspiciousActivity, reasonInsufficient)
		d.Outcome = deny(cl, withQuery(routes.HomePath, "error", CodeInsufficient), http.StatusForbidden, ErrInsufficientPermission, CodeInsufficient)
		return d
	}

	if c.policy.ProcessGating {
		if out, ok := c.gate(ctx, req, cl, p); !ok {
			d.Outcome = out
			d.ProcessState = p.Process.State()
			return d
		}
		d.ProcessState = p.Process.State()
	}

	d.Outcome = c.limit(ctx, req, cl, p)
	return d
}

func (c *Controller) permitted(p *directory.Principal, cl route.Classification, companyID string) bool {
	ev := c.policy.Evaluator
	if cl.MinRole != "" && !ev.HasRole(p, cl.MinRole) {
		return false
	}
	if !ev.CanAccessAll(p, cl.Required, companyID) {
		return false
	}
	return ev.CanActFor(p, p.CompanyIDs, companyID)
}

// gate applies the process selection state machine. It may resolve a single
// permission in place. ok is false when out must be returned.
func (c *Controller) gate(ctx context.Context, req Request, cl route.Classification, p *directory.Principal) (out Outcome, ok bool) {
	routes := c.policy.Routes
	perm := p.Process

	switch perm.State() {
	case process.NoAccess:
		c.emit(ctx, req, cl, p, p.ID, audit.TypeSuspiciousActivity, reasonNoProcess)
		return deny(cl, routes.AccessDeniedPath, http.StatusForbidden, ErrProcessSelectionDenied, CodeProcessDenied), false
	case process.SinglePermission:
		next, err := c.processes.Resolve(ctx, p.ID, perm)
		if err != nil {
			// The effective process is unambiguous; the write is retried on
			// the next request.
			slog.WarnContext(ctx, "failed to resolve single process",
				logger.PrincipalID(p.ID),
				logger.Error(err),
			)
		} else {
			p.Process = next
		}
	}

	// Membership gates access. The current process only picks the default
	// dashboard.
	if cl.Process != "" && !perm.Has(cl.Process) {
		c.emit(ctx, req, cl, p, p.ID, audit.TypeSuspiciousActivity, reasonProcessDenied)
		return deny(cl, routes.AccessDeniedPath, http.StatusForbidden, ErrProcessSelectionDenied, CodeProcessDenied), false
	}

	if perm.State() == process.SelectionPending && !cl.Selection {
		return deny(cl, routes.SelectionPath, http.StatusForbidden, ErrProcessNotSelected, CodeProcessNotSelected), false
	}

	if cl.SelectionPage(routes) && len(perm.Allowed) == 1 {
		return redirectTo(process.DashboardPath(perm.Allowed[0]), nil, ""), false
	}

	return Outcome{}, true
}

// limit applies the mutating-request rate limit to API routes.
func (c *Controller) limit(ctx context.Context, req Request, cl route.Classification, p *directory.Principal) Outcome {
	if !cl.API || !mutating(req.Method) {
		return allow()
	}

	key := req.IPAddress
	if p != nil {
		key = p.ID
	}
	if key == "" || c.limiter.Allow(key) {
		return allow()
	}

	if p != nil {
		c.emit(ctx, req, cl, p, p.ID, audit.TypeSuspiciousActivity, reasonRateLimited)
	}
	return withStatus(http.StatusTooManyRequests, ErrRateLimited, CodeRateLimited)
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Landing is the default page of an authenticated principal.
func (c *Controller) Landing(p *directory.Principal) string {
	routes := c.policy.Routes
	if !c.policy.ProcessGating || p == nil {
		return routes.HomePath
	}
	return p.Process.Landing(routes.SelectionPath, routes.AccessDeniedPath)
}

// emit hands a denial to the audit emitter. It never blocks and never lets an
// emitter failure reach the caller.
func (c *Controller) emit(ctx context.Context, req Request, cl route.Classification, p *directory.Principal, principalID, eventType, reason string) {
	ev := audit.SecurityEvent{
		Type:        eventType,
		PrincipalID: principalID,
		Resource:    "route",
		ResourceID:  cl.Path,
		Action:      req.Method,
		Success:     false,
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
		CompanyID:   req.CompanyID,
		Metadata: map[string]any{
			audit.AttrReason: reason,
			audit.AttrPath:   cl.Path,
			audit.AttrMethod: req.Method,
		},
	}
	if cl.Process != "" {
		ev.Metadata[audit.AttrProcess] = string(cl.Process)
	}
	if p != nil {
		ev.PrincipalEmail = p.Email
		ev.PrincipalRole = string(p.Role)
	}
	c.send(ctx, ev)
}

func (c *Controller) send(ctx context.Context, ev audit.SecurityEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "audit emitter panicked",
				slog.String("event_type", ev.Type),
				slog.Any("panic", r),
			)
		}
	}()
	c.auditor.Emit(context.WithoutCancel(ctx), ev)
}
