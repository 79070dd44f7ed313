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
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/opentrusty/staffgate/internal/access"
	"github.com/opentrusty/staffgate/internal/observability/logger"
	"github.com/unrolled/secure"
)

// ContentSecurityPolicy is the default CSP of both applications.
var ContentSecurityPolicy = strings.Join([]string{
	"default-src 'self'",
	"script-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net",
	"style-src 'self' 'unsafe-inline'",
	"img-src 'self' data: https:",
	"connect-src 'self'",
	"font-src 'self' https://fonts.gstatic.com",
	"object-src 'none'",
	"base-uri 'self'",
	"form-action 'self'",
}, "; ")

// SecurityConfig controls the response security headers
type SecurityConfig struct {
	ContentSecurityPolicy string
	// HSTS and the HTTPS redirect apply only when SSLRedirect is set.
	SSLRedirect bool
	STSSeconds  int64
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				attrs := []any{
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start)),
				}
				if d, ok := GetDecision(r.Context()); ok {
					attrs = append(attrs, logger.Outcome(d.Outcome.Kind.String()))
					if d.Outcome.Code != "" {
						attrs = append(attrs, logger.Code(d.Outcome.Code))
					}
				}
				slog.InfoContext(r.Context(), "http_request", attrs...)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// SecurityHeaders sets frame, sniffing, referrer, permissions and content
// security headers on every response.
func SecurityHeaders(cfg SecurityConfig) func(http.Handler) http.Handler {
	csp := cfg.ContentSecurityPolicy
	if csp == "" {
		csp = ContentSecurityPolicy
	}
	sm := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		PermissionsPolicy:     "camera=(), microphone=(), geolocation=()",
		ContentSecurityPolicy: csp,
		SSLRedirect:           cfg.SSLRedirect,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		STSSeconds:            cfg.STSSeconds,
		IsDevelopment:         !cfg.SSLRedirect,
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sm.Process(w, r); err != nil {
				slog.WarnContext(r.Context(), "secure headers blocked request", logger.Path(r.URL.Path), logger.Error(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccessMiddleware runs the access pipeline and realizes its outcome. Allowed
// requests continue with the decision in their context.
func (h *Handler) AccessMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := h.controller.Evaluate(r.Context(), access.Request{
			Method:       r.Method,
			Path:         r.URL.Path,
			SessionToken: h.getSessionFromCookie(r),
			IPAddress:    clientIP(r),
			UserAgent:    r.UserAgent(),
			CompanyID:    r.URL.Query().Get("companyId"),
		})

		if d.Outcome.ClearSession {
			h.clearSessionCookie(w)
		}

		switch d.Outcome.Kind {
		case access.Redirect:
			http.Redirect(w, r, d.Outcome.Target, http.StatusSeeOther)
			return
		case access.Status:
			respondError(w, d.Outcome.Status, d.Outcome.Code)
			return
		}

		next.ServeHTTP(w, r.WithContext(withDecision(r.Context(), d)))
	})
}

// CSRFMiddleware requires the X-CSRF-Token header on state-changing
// requests. Browsers do not send custom headers cross-origin without a
// preflight.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			next.ServeHTTP(w, r)
			return
		}

		if r.Header.Get("X-CSRF-Token") == "" {
			slog.WarnContext(r.Context(), "missing CSRF token header", logger.Method(r.Method), logger.Path(r.URL.Path))
			respondError(w, http.StatusForbidden, "csrf_token_required")
			return
		}

		next.ServeHTTP(w, r)
	})
}
