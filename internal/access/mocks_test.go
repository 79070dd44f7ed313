package access

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opentrusty/staffgate/internal/audit"
	"github.com/opentrusty/staffgate/internal/directory"
	"github.com/opentrusty/staffgate/internal/identity"
	"github.com/opentrusty/staffgate/internal/policy"
	"github.com/opentrusty/staffgate/internal/process"
	"github.com/opentrusty/staffgate/internal/ratelimit"
	"github.com/opentrusty/staffgate/internal/session"
	"github.com/stretchr/testify/require"
)

// MockIdentity maps session tokens and passwords to principal ids.
type MockIdentity struct {
	mu        sync.Mutex
	tokens    map[string]string
	passwords map[string]string
	emails    map[string]string
	err       error
	started   []string
	ended     []string
}

func NewMockIdentity() *MockIdentity {
	return &MockIdentity{
		tokens:    make(map[string]string),
		passwords: make(map[string]string),
		emails:    make(map[string]string),
	}
}

func (m *MockIdentity) addLogin(email, password, principalID string) {
	m.passwords[email] = password
	m.emails[email] = principalID
}

func (m *MockIdentity) VerifyCredentials(_ context.Context, email, password string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	pid, ok := m.emails[email]
	if !ok {
		return "", identity.ErrInvalidCredentials
	}
	if m.passwords[email] != password {
		return pid, identity.ErrInvalidCredentials
	}
	return pid, nil
}

func (m *MockIdentity) ResolvePrincipalFromSession(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	return m.tokens[token], nil
}

func (m *MockIdentity) StartSession(_ context.Context, principalID, ip, ua string, remember bool) (string, *session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := "token-" + principalID
	m.tokens[token] = principalID
	m.started = append(m.started, principalID)
	now := time.Now()
	return token, &session.Session{
		ID:          "session-" + principalID,
		PrincipalID: principalID,
		IPAddress:   ip,
		UserAgent:   ua,
		CreatedAt:   now,
		LastSeenAt:  now,
		ExpiresAt:   now.Add(time.Hour),
	}, nil
}

func (m *MockIdentity) EndSession(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pid := m.tokens[token]
	delete(m.tokens, token)
	if pid != "" {
		m.ended = append(m.ended, pid)
	}
	return pid, nil
}

// MockDirectory is an in-memory directory that also stores process
// selections.
type MockDirectory struct {
	mu         sync.Mutex
	principals map[string]directory.Principal
	err        error
	block      bool
	writes     int
	logins     map[string]time.Time
}

func NewMockDirectory() *MockDirectory {
	return &MockDirectory{
		principals: make(map[string]directory.Principal),
		logins:     make(map[string]time.Time),
	}
}

func (m *MockDirectory) add(p directory.Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.principals[p.ID] = p
}

func (m *MockDirectory) current(principalID string) process.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.principals[principalID].Process.Current
}

func (m *MockDirectory) Lookup(ctx context.Context, principalID string) (*directory.Principal, error) {
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.principals[principalID]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return &p, nil
}

func (m *MockDirectory) CompareAndSetCurrentProcess(_ context.Context, principalID string, expected, next process.Type) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[principalID]
	if !ok {
		return false, directory.ErrNotFound
	}
	if p.Process.Stored != expected {
		return false, nil
	}
	p.Process.Current, p.Process.Stored = next, next
	m.principals[principalID] = p
	m.writes++
	return true, nil
}

func (m *MockDirectory) SetCurrentProcess(_ context.Context, principalID string, next process.Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[principalID]
	if !ok {
		return directory.ErrNotFound
	}
	p.Process.Current, p.Process.Stored = next, next
	m.principals[principalID] = p
	m.writes++
	return nil
}

func (m *MockDirectory) RecordLogin(_ context.Context, principalID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[principalID] = at
	return nil
}

func (m *MockDirectory) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// MockEmitter records events synchronously.
type MockEmitter struct {
	mu     sync.Mutex
	events []audit.SecurityEvent
}

func (m *MockEmitter) Emit(_ context.Context, ev audit.SecurityEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *MockEmitter) Events() []audit.SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.SecurityEvent(nil), m.events...)
}

func (m *MockEmitter) Types() []string {
	var out []string
	for _, ev := range m.Events() {
		out = append(out, ev.Type)
	}
	return out
}

// PanickingEmitter misbehaves on every call.
type PanickingEmitter struct{}

func (PanickingEmitter) Emit(context.Context, audit.SecurityEvent) {
	panic("audit sink exploded")
}

type fixture struct {
	controller *Controller
	identity   *MockIdentity
	directory  *MockDirectory
	emitter    *MockEmitter
}

type fixtureOption func(*Dependencies, *Config)

func withEmitter(e audit.Emitter) fixtureOption {
	return func(d *Dependencies, _ *Config) { d.Audit = e }
}

func withLimiter(l *ratelimit.Limiter) fixtureOption {
	return func(d *Dependencies, _ *Config) { d.Limiter = l }
}

func withTimeout(t time.Duration) fixtureOption {
	return func(_ *Dependencies, c *Config) { c.UpstreamTimeout = t }
}

func newFixture(t *testing.T, variant policy.Variant, opts ...fixtureOption) *fixture {
	t.Helper()

	pol, err := policy.Default(variant)
	require.NoError(t, err)

	f := &fixture{
		identity:  NewMockIdentity(),
		directory: NewMockDirectory(),
		emitter:   &MockEmitter{},
	}
	deps := Dependencies{
		Policy:    pol,
		Identity:  f.identity,
		Sessions:  f.identity,
		Directory: f.directory,
		Logins:    f.directory,
		Processes: process.NewService(f.directory),
		Limiter:   ratelimit.New(ratelimit.Config{}),
		Audit:     f.emitter,
	}
	cfg := Config{}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}

	f.controller, err = NewController(deps, cfg)
	require.NoError(t, err)
	return f
}

// signIn registers p and returns a session token for it.
func (f *fixture) signIn(p directory.Principal) string {
	f.directory.add(p)
	token := "token-" + p.ID
	f.identity.mu.Lock()
	f.identity.tokens[token] = p.ID
	f.identity.mu.Unlock()
	return token
}

func (f *fixture) get(token, path string) Decision {
	return f.controller.Evaluate(context.Background(), Request{
		Method:       "GET",
		Path:         path,
		SessionToken: token,
		IPAddress:    "203.0.113.7",
	})
}
