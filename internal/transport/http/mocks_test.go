package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opentrusty/staffgate/internal/access"
	"github.com/opentrusty/staffgate/internal/audit"
	"github.com/opentrusty/staffgate/internal/directory"
	"github.com/opentrusty/staffgate/internal/identity"
	"github.com/opentrusty/staffgate/internal/policy"
	"github.com/opentrusty/staffgate/internal/process"
	"github.com/opentrusty/staffgate/internal/ratelimit"
	"github.com/opentrusty/staffgate/internal/session"
	"github.com/stretchr/testify/require"
)

// MockIdentity serves credentials and sessions from memory.
type MockIdentity struct {
	mu        sync.Mutex
	tokens    map[string]string
	passwords map[string]string
	ids       map[string]string
}

func NewMockIdentity() *MockIdentity {
	return &MockIdentity{
		tokens:    make(map[string]string),
		passwords: make(map[string]string),
		ids:       make(map[string]string),
	}
}

func (m *MockIdentity) VerifyCredentials(_ context.Context, email, password string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pid, ok := m.ids[email]
	if !ok || m.passwords[email] != password {
		return "", identity.ErrInvalidCredentials
	}
	return pid, nil
}

func (m *MockIdentity) ResolvePrincipalFromSession(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[token], nil
}

func (m *MockIdentity) StartSession(_ context.Context, principalID, ip, ua string, remember bool) (string, *session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := "token-" + principalID
	m.tokens[token] = principalID
	now := time.Now()
	lifetime := time.Hour
	if remember {
		lifetime = 24 * time.Hour
	}
	return token, &session.Session{
		ID:          "session-" + principalID,
		PrincipalID: principalID,
		IPAddress:   ip,
		UserAgent:   ua,
		CreatedAt:   now,
		LastSeenAt:  now,
		ExpiresAt:   now.Add(lifetime),
	}, nil
}

func (m *MockIdentity) EndSession(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pid := m.tokens[token]
	delete(m.tokens, token)
	return pid, nil
}

func (m *MockIdentity) ChangePassword(_ context.Context, email, oldPassword, newPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.passwords[email] != oldPassword {
		return identity.ErrInvalidCredentials
	}
	if err := identity.ValidatePassword(newPassword); err != nil {
		return err
	}
	m.passwords[email] = newPassword
	return nil
}

// MockDirectory is an in-memory principal directory.
type MockDirectory struct {
	mu         sync.Mutex
	principals map[string]directory.Principal
}

func NewMockDirectory() *MockDirectory {
	return &MockDirectory{principals: make(map[string]directory.Principal)}
}

func (m *MockDirectory) Lookup(_ context.Context, principalID string) (*directory.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	return nil
}

func (m *MockDirectory) RecordLogin(context.Context, string, time.Time) error {
	return nil
}

func (m *MockDirectory) current(principalID string) process.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.principals[principalID].Process.Current
}

// MockEmitter records events.
type MockEmitter struct {
	mu     sync.Mutex
	events []audit.SecurityEvent
}

func (m *MockEmitter) Emit(_ context.Context, ev audit.SecurityEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *MockEmitter) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Type)
	}
	return out
}

type server struct {
	router    http.Handler
	handler   *Handler
	identity  *MockIdentity
	directory *MockDirectory
	emitter   *MockEmitter
}

func newServer(t *testing.T, variant policy.Variant) *server {
	t.Helper()

	pol, err := policy.Default(variant)
	require.NoError(t, err)

	s := &server{
		identity:  NewMockIdentity(),
		directory: NewMockDirectory(),
		emitter:   &MockEmitter{},
	}
	controller, err := access.NewController(access.Dependencies{
		Policy:    pol,
		Identity:  s.identity,
		Sessions:  s.identity,
		Directory: s.directory,
		Logins:    s.directory,
		Processes: process.NewService(s.directory),
		Limiter:   ratelimit.New(ratelimit.Config{}),
		Audit:     s.emitter,
	}, access.Config{})
	require.NoError(t, err)

	s.handler = NewHandler(controller, s.identity, SessionConfig{CookieHTTPOnly: true}, SecurityConfig{})
	s.router = NewRouter(s.handler, nil, RouterConfig{})
	return s
}

// add registers p with a password and returns its session token.
func (s *server) add(p directory.Principal, password string) string {
	s.directory.mu.Lock()
	s.directory.principals[p.ID] = p
	s.directory.mu.Unlock()

	s.identity.mu.Lock()
	defer s.identity.mu.Unlock()
	s.identity.ids[p.Email] = p.ID
	s.identity.passwords[p.Email] = password
	token := "token-" + p.ID
	s.identity.tokens[token] = p.ID
	return token
}

func (s *server) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("X-CSRF-Token", "1")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "staffgate_session", Value: token})
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == "staffgate_session" {
			return c
		}
	}
	return nil
}
