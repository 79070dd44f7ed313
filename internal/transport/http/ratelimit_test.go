package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPurpose: Validates the sign-in throttle.
// Scope: Unit Test
// Security: Credential stuffing from one address
// Expected: Requests beyond the burst answer 429 with Retry-After; other addresses are unaffected.
// Test Case ID: HTTP-14
func TestLoginThrottleMiddleware(t *testing.T) {
	lt := NewLoginThrottle(0.001, 2)
	defer lt.Close()

	h := LoginThrottleMiddleware(lt)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, send("198.51.100.1:1000").Code)
	assert.Equal(t, http.StatusNoContent, send("198.51.100.1:1001").Code)

	w := send("198.51.100.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, send("198.51.100.2:1000").Code)
}

func TestLoginThrottleMiddleware_Nil(t *testing.T) {
	h := LoginThrottleMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}

func TestCSRFMiddleware(t *testing.T) {
	h := CSRFMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		method string
		header bool
		want   int
	}{
		{http.MethodGet, false, http.StatusNoContent},
		{http.MethodHead, false, http.StatusNoContent},
		{http.MethodPost, false, http.StatusForbidden},
		{http.MethodDelete, false, http.StatusForbidden},
		{http.MethodPost, true, http.StatusNoContent},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, "/api/me", nil)
		if tt.header {
			req.Header.Set("X-CSRF-Token", "1")
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, tt.want, w.Code, "%s header=%v", tt.method, tt.header)
	}
}
