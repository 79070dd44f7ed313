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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/opentrusty/staffgate/internal/access"
	"github.com/opentrusty/staffgate/internal/audit"
	"github.com/opentrusty/staffgate/internal/authz"
	"github.com/opentrusty/staffgate/internal/directory"
	"github.com/opentrusty/staffgate/internal/policy"
	"github.com/opentrusty/staffgate/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// HTTP TRANSPORT TESTS
// Category: Transport - Access Middleware & Handlers
// Type: Unit Test (UT)
// =============================================================================

const testPassword = "Secret#Pass1"

func consoleAdmin() directory.Principal {
	return directory.Principal{
		ID:         "11111111-1111-1111-1111-111111111111",
		Email:      "root@staffgate.test",
		Role:       authz.RoleSuperAdmin,
		CompanyIDs: []string{"c-1"},
		Active:     true,
	}
}

func recruiter(allowed ...process.Type) directory.Principal {
	return directory.Principal{
		ID:      "22222222-2222-2222-2222-222222222222",
		Email:   "rec@acme.test",
		Role:    authz.RoleRecruiter,
		Active:  true,
		Process: process.Permission{Allowed: allowed},
	}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// TestPurpose: Validates that every response carries the security headers.
// Scope: Unit Test
// Security: Clickjacking, MIME sniffing and content injection hardening
// Expected: Health is public and answers 200 with frame, nosniff and CSP headers.
// Test Case ID: HTTP-01
func TestHTTP_Health_SecurityHeaders(t *testing.T) {
	s := newServer(t, policy.Console)

	w := s.do(http.MethodGet, "/health", "", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'self'")
	assert.Equal(t, "console", decodeBody(t, w)["variant"])
}

func TestHTTP_Health_ProbeFailure(t *testing.T) {
	s := newServer(t, policy.Customer)
	s.handler.SetHealthProbe(func(context.Context) error { return errors.New("connection refused") })

	w := s.do(http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unavailable", decodeBody(t, w)["status"])
}

// TestPurpose: Validates that anonymous requests are sent to sign-in or refused.
// Scope: Unit Test
// Security: Authentication boundary
// Expected: Pages answer 303 to /login with the original path, API routes answer 401.
// Test Case ID: HTTP-02
func TestHTTP_Unauthenticated(t *testing.T) {
	s := newServer(t, policy.Console)

	w := s.do(http.MethodGet, "/dashboard", "", "")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?redirectTo=%2Fdashboard", w.Header().Get("Location"))

	w = s.do(http.MethodGet, "/api/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, access.CodeUnauthenticated, decodeBody(t, w)["error"])
}

// TestPurpose: Validates that a stale cookie is removed.
// Scope: Unit Test
// Security: Session hygiene
// Expected: An unknown session token clears the cookie and redirects to sign-in.
// Test Case ID: HTTP-03
func TestHTTP_StaleCookieCleared(t *testing.T) {
	s := newServer(t, policy.Console)

	w := s.do(http.MethodGet, "/dashboard", "token-unknown", "")

	assert.Equal(t, http.StatusSeeOther, w.Code)
	c := sessionCookie(w)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0)
}

// TestPurpose: Validates the sign-in endpoint.
// Scope: Unit Test
// Security: Session cookie attributes and credential errors
// Expected: Valid credentials set an HttpOnly cookie; invalid ones answer 401 without a cookie.
// Test Case ID: HTTP-04
func TestHTTP_Login(t *testing.T) {
	s := newServer(t, policy.Console)
	admin := consoleAdmin()
	s.add(admin, testPassword)

	w := s.do(http.MethodPost, "/api/auth/login", "",
		`{"email":"Root@Staffgate.test","password":"`+testPassword+`","redirect_to":"https://evil.test"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	c := sessionCookie(w)
	require.NotNil(t, c)
	assert.Equal(t, "token-"+admin.ID, c.Value)
	assert.True(t, c.HttpOnly)
	assert.Greater(t, c.MaxAge, 0)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, admin.ID, resp.Principal.ID)
	assert.Equal(t, "super_admin", resp.Principal.Role)
	assert.Equal(t, "/dashboard", resp.RedirectTo)
	assert.Nil(t, resp.Principal.Process)
	assert.Contains(t, s.emitter.Types(), audit.TypeLogin)

	w = s.do(http.MethodPost, "/api/auth/login", "",
		`{"email":"root@staffgate.test","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, access.CodeInvalidCredentials, decodeBody(t, w)["error"])
	assert.Nil(t, sessionCookie(w))
}

// TestPurpose: Validates sign-in input handling.
// Scope: Unit Test
// Security: Input validation and CSRF boundary
// Expected: Malformed bodies answer 400, a missing CSRF header answers 403.
// Test Case ID: HTTP-05
func TestHTTP_Login_InvalidInput(t *testing.T) {
	s := newServer(t, policy.Console)

	tests := []struct {
		name string
		body string
	}{
		{"empty email", `{"email":"","password":"x"}`},
		{"not an email", `{"email":"nobody","password":"x"}`},
		{"missing password", `{"email":"a@b.test"}`},
		{"unknown field", `{"email":"a@b.test","password":"x","tenant":"t"}`},
		{"not json", `email=a@b.test`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/auth/login", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"a@b.test","password":"x"}`))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "csrf_token_required", decodeBody(t, w)["error"])
}

// TestPurpose: Validates that inactive principals cannot sign in.
// Scope: Unit Test
// Security: Account deactivation is enforced at sign-in
// Expected: 403 account_inactive, no cookie, a login_failed event.
// Test Case ID: HTTP-06
func TestHTTP_Login_Inactive(t *testing.T) {
	s := newServer(t, policy.Console)
	admin := consoleAdmin()
	admin.Active = false
	s.add(admin, testPassword)

	w := s.do(http.MethodPost, "/api/auth/login", "",
		`{"email":"root@staffgate.test","password":"`+testPassword+`"}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, access.CodeAccountInactive, decodeBody(t, w)["error"])
	assert.Nil(t, sessionCookie(w))
	assert.Contains(t, s.emitter.Types(), audit.TypeLoginFailed)
}

// TestPurpose: Validates sign-out.
// Scope: Unit Test
// Security: Session revocation
// Expected: The cookie is cleared and the token no longer resolves.
// Test Case ID: HTTP-07
func TestHTTP_SignOut(t *testing.T) {
	s := newServer(t, policy.Console)
	token := s.add(consoleAdmin(), testPassword)

	w := s.do(http.MethodPost, "/api/auth/signout", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	c := sessionCookie(w)
	require.NotNil(t, c)
	assert.Less(t, c.MaxAge, 0)
	assert.Contains(t, s.emitter.Types(), audit.TypeLogout)

	w = s.do(http.MethodGet, "/api/me", token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestPurpose: Validates the current principal endpoint.
// Scope: Unit Test
// Security: Grants are not disclosed
// Expected: Console answers the principal without process context.
// Test Case ID: HTTP-08
func TestHTTP_Me(t *testing.T) {
	s := newServer(t, policy.Console)
	admin := consoleAdmin()
	token := s.add(admin, testPassword)

	w := s.do(http.MethodGet, "/api/me", token, "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, admin.ID, body["id"])
	assert.Equal(t, []any{"c-1"}, body["company_ids"])
	assert.NotContains(t, body, "grants")
	assert.NotContains(t, body, "process")

	w = s.do(http.MethodGet, "/dashboard", token, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestPurpose: Validates password change.
// Scope: Unit Test
// Security: Re-authentication and password policy
// Expected: Wrong current password 401, weak new password 400, success clears the cookie.
// Test Case ID: HTTP-09
func TestHTTP_ChangePassword(t *testing.T) {
	s := newServer(t, policy.Console)
	token := s.add(consoleAdmin(), testPassword)

	w := s.do(http.MethodPost, "/api/user/change-password", token,
		`{"old_password":"nope","new_password":"Newer#Pass22"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/user/change-password", token,
		`{"old_password":"`+testPassword+`","new_password":"password1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "weak_password", decodeBody(t, w)["error"])

	w = s.do(http.MethodPost, "/api/user/change-password", token,
		`{"old_password":"`+testPassword+`","new_password":"Newer#Pass22"}`)
	require.Equal(t, http.StatusOK, w.Code)
	c := sessionCookie(w)
	require.NotNil(t, c)
	assert.Less(t, c.MaxAge, 0)
}

// TestPurpose: Validates the selection flow of a principal holding two processes.
// Scope: Unit Test
// Security: Process gating
// Expected: Protected API routes answer 403 process_not_selected until a held process is committed.
// Test Case ID: HTTP-10
func TestHTTP_Customer_SelectProcess(t *testing.T) {
	s := newServer(t, policy.Customer)
	p := recruiter(process.Recruitment, process.BenchSales)
	token := s.add(p, testPassword)

	w := s.do(http.MethodGet, "/api/me", token, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, access.CodeProcessNotSelected, decodeBody(t, w)["error"])

	w = s.do(http.MethodGet, "/select-process", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var pc process.Context
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pc))
	assert.Equal(t, []process.Type{process.Recruitment, process.BenchSales}, pc.AvailableProcesses)
	assert.True(t, pc.CanSwitchProcess)

	w = s.do(http.MethodPost, "/api/set-process", token, `{"process":"bench-sales","remember":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp SelectProcessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, process.BenchSales, resp.Process)
	assert.Equal(t, "/bench-sales/dashboard", resp.RedirectTo)
	assert.Equal(t, process.BenchSales, s.directory.current(p.ID))

	w = s.do(http.MethodGet, "/api/me", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "bench_sales", body["process"].(map[string]any)["current_process"])

	w = s.do(http.MethodPost, "/api/user/switch-process", token, `{"process":"recruitment"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, process.Recruitment, s.directory.current(p.ID))
	assert.Contains(t, s.emitter.Types(), audit.TypeProcessSelected)
	assert.Contains(t, s.emitter.Types(), audit.TypeProcessSwitched)
}

// TestPurpose: Validates that a principal cannot select a process it does not hold.
// Scope: Unit Test
// Security: Process privilege escalation
// Expected: 403 for an unheld process, 400 for an unknown one, stored state untouched.
// Test Case ID: HTTP-11
func TestHTTP_Customer_SelectProcess_Denied(t *testing.T) {
	s := newServer(t, policy.Customer)
	p := recruiter(process.Recruitment)
	token := s.add(p, testPassword)

	w := s.do(http.MethodPost, "/api/set-process", token, `{"process":"bench_sales"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, access.CodeProcessDenied, decodeBody(t, w)["error"])
	assert.Contains(t, s.emitter.Types(), audit.TypeSuspiciousActivity)

	w = s.do(http.MethodPost, "/api/set-process", token, `{"process":"payroll"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, access.CodeInvalidProcess, decodeBody(t, w)["error"])

	assert.NotEqual(t, process.BenchSales, s.directory.current(p.ID))
}

// TestPurpose: Validates process dashboards and the customer home redirect.
// Scope: Unit Test
// Security: Process-scoped routes
// Expected: Held dashboards render, unheld ones go to /access-denied, /dashboard forwards to the landing route.
// Test Case ID: HTTP-12
func TestHTTP_Customer_Dashboards(t *testing.T) {
	s := newServer(t, policy.Customer)
	p := recruiter(process.Recruitment)
	token := s.add(p, testPassword)

	w := s.do(http.MethodGet, "/dashboard", token, "")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/recruitment/dashboard", w.Header().Get("Location"))

	w = s.do(http.MethodGet, "/recruitment/dashboard", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "recruitment", decodeBody(t, w)["process"])

	w = s.do(http.MethodGet, "/bench-sales/dashboard", token, "")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/access-denied", w.Header().Get("Location"))

	w = s.do(http.MethodGet, "/access-denied", token, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	for _, path := range []string{"/bench_sales/dashboard", "/recruitment_x/dashboard", "/Bench-Sales/dashboard"} {
		w = s.do(http.MethodGet, path, token, "")
		assert.NotEqual(t, http.StatusOK, w.Code, path)
		assert.NotContains(t, w.Body.String(), "bench_sales", path)
	}
}

// TestPurpose: Validates that process routes are mounted only where gating applies.
// Scope: Unit Test
// Security: Variant separation
// Expected: Console exposes no selection endpoints; customer exposes them.
// Test Case ID: HTTP-13
func TestHTTP_RouterSplit(t *testing.T) {
	console := newServer(t, policy.Console)
	customer := newServer(t, policy.Customer)

	token := console.add(consoleAdmin(), testPassword)
	w := console.do(http.MethodPost, "/api/set-process", token, `{"process":"recruitment"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = console.do(http.MethodGet, "/select-process", token, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	token = customer.add(recruiter(process.Recruitment, process.BenchSales), testPassword)
	w = customer.do(http.MethodGet, "/api/set-process", token, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
