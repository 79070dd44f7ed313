// @title Staffgate API
// @version 1.0.0
// @description Access control for the console and customer applications

// @BasePath /

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name staffgate_session

package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/opentrusty/staffgate/internal/access"
	"github.com/opentrusty/staffgate/internal/observability/logger"
	"github.com/opentrusty/staffgate/internal/policy"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// PasswordChanger replaces a principal's password.
type PasswordChanger interface {
	ChangePassword(ctx context.Context, email, oldPassword, newPassword string) error
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	controller    *access.Controller
	passwords     PasswordChanger
	validate      *validator.Validate
	sessionConfig SessionConfig
	security      SecurityConfig
	probe         func(context.Context) error
}

// SessionConfig holds session cookie configuration
type SessionConfig struct {
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite http.SameSite
}

// RouterConfig holds router-wide limits
type RouterConfig struct {
	RequestTimeout time.Duration
	// RequestsPerMinute caps all requests from one address. Zero disables it.
	RequestsPerMinute int
}

// NewHandler creates a new HTTP handler
func NewHandler(
	controller *access.Controller,
	passwords PasswordChanger,
	sessionConfig SessionConfig,
	security SecurityConfig,
) *Handler {
	if sessionConfig.CookieName == "" {
		sessionConfig.CookieName = "staffgate_session"
	}
	if sessionConfig.CookiePath == "" {
		sessionConfig.CookiePath = "/"
	}
	return &Handler{
		controller:    controller,
		passwords:     passwords,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		sessionConfig: sessionConfig,
		security:      security,
	}
}

// SetHealthProbe makes /health report 503 while probe fails, typically a
// database ping.
func (h *Handler) SetHealthProbe(probe func(context.Context) error) {
	h.probe = probe
}

// NewRouter creates a new HTTP router. Process routes are mounted only for
// the customer application.
func NewRouter(h *Handler, throttle *LoginThrottle, cfg RouterConfig) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(SecurityHeaders(h.security))
	if cfg.RequestsPerMinute > 0 {
		r.Use(httprate.Limit(cfg.RequestsPerMinute, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				respondError(w, http.StatusTooManyRequests, access.CodeRateLimited)
			}),
		))
	}
	r.Use(h.AccessMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/access-denied", h.AccessDenied)
	r.Get("/dashboard", h.Dashboard)

	r.Route("/api", func(r chi.Router) {
		r.Use(CSRFMiddleware)

		r.With(LoginThrottleMiddleware(throttle)).Post("/auth/login", h.Login)
		r.Post("/auth/signout", h.SignOut)

		r.Get("/me", h.GetCurrentPrincipal)
		r.Post("/user/change-password", h.ChangePassword)

		if h.controller.Policy().ProcessGating {
			r.Get("/set-process", h.GetProcessContext)
			r.Post("/set-process", h.SetProcess)
			r.Post("/user/switch-process", h.SwitchProcess)
		}
	})

	if h.controller.Policy().ProcessGating {
		r.Get("/select-process", h.SelectionPage)
		r.Get("/{process}/dashboard", h.ProcessDashboard)
	}

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if h.probe != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.probe(ctx); err != nil {
			slog.WarnContext(ctx, "health probe failed", logger.Error(err))
			status, code = "unavailable", http.StatusServiceUnavailable
		}
	}
	respondJSON(w, code, map[string]string{
		"status":  status,
		"service": "staffgate",
		"variant": string(h.controller.Policy().Variant),
	})
}

// AccessDenied is the terminal page for refused principals
// @Summary Access denied terminal
// @Tags System
// @Produce json
// @Success 403 {object} map[string]string
// @Router /access-denied [get]
func (h *Handler) AccessDenied(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusForbidden, access.CodeAccessDenied)
}

// Dashboard is the home page. The customer application forwards to the
// principal's landing route.
// @Summary Home
// @Tags Navigation
// @Produce json
// @Security CookieAuth
// @Success 200 {object} PrincipalResponse
// @Success 303
// @Router /dashboard [get]
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	p := GetPrincipal(r.Context())
	if h.controller.Policy().Variant == policy.Customer {
		http.Redirect(w, r, h.controller.Landing(p), http.StatusSeeOther)
		return
	}
	respondJSON(w, http.StatusOK, h.principalResponse(p))
}

// Helper functions
func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    token,
		Path:     h.sessionConfig.CookiePath,
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: h.sessionConfig.CookieHTTPOnly,
		SameSite: h.sessionConfig.CookieSameSite,
		MaxAge:   int(maxAge.Seconds()),
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    "",
		Path:     h.sessionConfig.CookiePath,
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: h.sessionConfig.CookieHTTPOnly,
		SameSite: h.sessionConfig.CookieSameSite,
		MaxAge:   -1,
	})
}

func (h *Handler) getSessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.sessionConfig.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code string) {
	respondJSON(w, status, map[string]string{
		"error": code,
	})
}
