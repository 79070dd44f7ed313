package access

import (
	"context"
	"testing"

	"github.com/opentrusty/staffgate/internal/audit"
	"github.com/opentrusty/staffgate/internal/authz"
	"github.com/opentrusty/staffgate/internal/identity"
	"github.com/opentrusty/staffgate/internal/policy"
	"github.com/opentrusty/staffgate/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates the sign-in orchestration.
// Scope: Unit Test
// Security: Authentication audit trail
// Expected: A session starts, last login is recorded, login is audited and the landing route returned.
// Test Case ID: ACC-14
func TestLogin_Success(t *testing.T) {
	f := newFixture(t, policy.Customer)
	f.directory.add(customerUser("rec", authz.RoleRecruiter, "", process.BenchSales))
	f.identity.addLogin("rec@example.com", "Secret#123", "rec")

	res, err := f.controller.Login(context.Background(), LoginRequest{
		Email:     " REC@example.com ",
		Password:  "Secret#123",
		Remember:  true,
		IPAddress: "203.0.113.7",
	})
	require.NoError(t, err)

	assert.Equal(t, "token-rec", res.Token)
	assert.Equal(t, "/bench-sales/dashboard", res.RedirectTo)
	assert.Equal(t, process.BenchSales, f.directory.current("rec"), "single process resolved at sign-in")
	assert.Contains(t, f.directory.logins, "rec")
	assert.Positive(t, f.controller.CookieMaxAge(res))

	events := f.emitter.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.TypeLogin, events[0].Type)
	assert.True(t, events[0].Success)
	assert.Equal(t, true, events[0].Metadata[audit.AttrRemember])

	// The new session passes the pipeline.
	assert.True(t, f.get(res.Token, "/bench-sales/dashboard").Outcome.Allowed())
}

func TestLogin_Failures(t *testing.T) {
	f := newFixture(t, policy.Console)
	f.identity.addLogin("root@example.com", "Secret#123", "root")
	f.directory.add(consoleUser("root", authz.RoleSuperAdmin))

	_, err := f.controller.Login(context.Background(), LoginRequest{Email: "root@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	_, err = f.controller.Login(context.Background(), LoginRequest{Email: "nobody@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	inactive := consoleUser("off", authz.RoleCompanyAdmin)
	inactive.Active = false
	f.directory.add(inactive)
	f.identity.addLogin("off@example.com", "Secret#123", "off")
	_, err = f.controller.Login(context.Background(), LoginRequest{Email: "off@example.com", Password: "Secret#123"})
	assert.ErrorIs(t, err, ErrInactiveAccount)

	f.identity.addLogin("ghost@example.com", "Secret#123", "ghost")
	_, err = f.controller.Login(context.Background(), LoginRequest{Email: "ghost@example.com", Password: "Secret#123"})
	assert.ErrorIs(t, err, ErrOrphanedIdentity)

	assert.Equal(t, []string{
		audit.TypeLoginFailed,
		audit.TypeLoginFailed,
		audit.TypeLoginFailed,
		audit.TypeSuspiciousActivity,
	}, f.emitter.Types())
	assert.Empty(t, f.identity.started)

	events := f.emitter.Events()
	assert.Equal(t, "root", events[0].PrincipalID)
	assert.Empty(t, events[1].PrincipalID)
	assert.Equal(t, reasonInactive, events[2].Metadata[audit.AttrReason])
}

// TestPurpose: Validates the post-login redirect target.
// Scope: Unit Test
// Security: Open redirect prevention (CWE-601)
// Expected: Only local protected paths the principal can reach are honoured.
// Test Case ID: ACC-15
func TestLogin_RedirectTo(t *testing.T) {
	f := newFixture(t, policy.Customer)
	f.directory.add(customerUser("rec", authz.RoleRecruiter, process.Recruitment, process.Recruitment))
	f.identity.addLogin("rec@example.com", "Secret#123", "rec")

	cases := map[string]string{
		"/recruitment/jobs/7":      "/recruitment/jobs/7",
		"https://evil.example/":    "/recruitment/dashboard",
		"//evil.example/":          "/recruitment/dashboard",
		`/\evil.example`:           "/recruitment/dashboard",
		"/bench-sales/dashboard":   "/recruitment/dashboard",
		"/login":                   "/recruitment/dashboard",
		"/api/me":                  "/recruitment/dashboard",
		"":                         "/recruitment/dashboard",
		"/recruitment/../settings": "/settings",
	}
	for requested, want := range cases {
		res, err := f.controller.Login(context.Background(), LoginRequest{
			Email:      "rec@example.com",
			Password:   "Secret#123",
			RedirectTo: requested,
		})
		require.NoError(t, err)
		assert.Equal(t, want, res.RedirectTo, requested)
	}
}

func TestLogout(t *testing.T) {
	f := newFixture(t, policy.Console)
	token := f.signIn(consoleUser("root", authz.RoleSuperAdmin))

	require.NoError(t, f.controller.Logout(context.Background(), token, "203.0.113.7", "test"))
	assert.Equal(t, []string{"root"}, f.identity.ended)
	assert.Equal(t, []string{audit.TypeLogout}, f.emitter.Types())

	require.NoError(t, f.controller.Logout(context.Background(), token, "", ""))
	assert.Len(t, f.emitter.Events(), 1, "ending a dead session is silent")

	d := f.get(token, "/enums")
	assert.Equal(t, Redirect, d.Outcome.Kind)
}
