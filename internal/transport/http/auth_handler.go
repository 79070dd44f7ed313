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
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/opentrusty/staffgate/internal/access"
	"github.com/opentrusty/staffgate/internal/directory"
	"github.com/opentrusty/staffgate/internal/identity"
	"github.com/opentrusty/staffgate/internal/observability/logger"
	"github.com/opentrusty/staffgate/internal/process"
)

// LoginRequest represents login credentials
type LoginRequest struct {
	Email      string `json:"email" validate:"required,email,max=254" example:"user@example.com"`
	Password   string `json:"password" validate:"required,max=1024" example:"Secret#123"`
	Remember   bool   `json:"remember"`
	RedirectTo string `json:"redirect_to" validate:"omitempty,max=2048" example:"/recruitment/jobs"`
}

// PrincipalResponse is the client view of a principal. Grants are never
// exposed.
type PrincipalResponse struct {
	ID          string           `json:"id"`
	Email       string           `json:"email"`
	Role        string           `json:"role"`
	CompanyIDs  []string         `json:"company_ids"`
	LastLoginAt *time.Time       `json:"last_login_at,omitempty"`
	Process     *process.Context `json:"process,omitempty"`
}

// LoginResponse is returned on successful sign-in
type LoginResponse struct {
	Principal  PrincipalResponse `json:"principal"`
	RedirectTo string            `json:"redirect_to"`
}

// Login handles user login
// @Summary Login
// @Description Authenticate with email and password and start a session
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 423 {object} map[string]string
// @Router /api/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	result, err := h.controller.Login(r.Context(), access.LoginRequest{
		Email:      req.Email,
		Password:   req.Password,
		Remember:   req.Remember,
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
		RedirectTo: req.RedirectTo,
	})
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			respondError(w, http.StatusUnauthorized, access.CodeInvalidCredentials)
		case errors.Is(err, identity.ErrAccountLocked):
			respondError(w, http.StatusLocked, access.CodeAccountLocked)
		case errors.Is(err, access.ErrInactiveAccount):
			respondError(w, http.StatusForbidden, access.CodeAccountInactive)
		case errors.Is(err, access.ErrOrphanedIdentity):
			respondError(w, http.StatusForbidden, access.CodeAccessDenied)
		case errors.Is(err, access.ErrUpstreamUnavailable):
			respondError(w, http.StatusServiceUnavailable, access.CodeUpstreamUnavailable)
		default:
			slog.ErrorContext(r.Context(), "failed to sign in", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}

	h.setSessionCookie(w, result.Token, h.controller.CookieMaxAge(result))

	respondJSON(w, http.StatusOK, LoginResponse{
		Principal:  h.principalResponse(result.Principal),
		RedirectTo: result.RedirectTo,
	})
}

// SignOut handles user logout
// @Summary Sign out
// @Description Revoke the current session
// @Tags Auth
// @Produce json
// @Security CookieAuth
// @Success 200 {object} map[string]string
// @Router /api/auth/signout [post]
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	token := h.getSessionFromCookie(r)
	if token != "" {
		if err := h.controller.Logout(r.Context(), token, clientIP(r), r.UserAgent()); err != nil {
			slog.ErrorContext(r.Context(), "failed to revoke session", logger.Error(err))
		}
	}

	h.clearSessionCookie(w)

	respondJSON(w, http.StatusOK, map[string]string{
		"message":     "signed out",
		"redirect_to": h.controller.Policy().Routes.LoginPath,
	})
}

// ChangePasswordRequest represents password change data
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required,max=1024"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=1024,nefield=OldPassword"`
}

// ChangePassword changes the password of the current principal and ends all
// of its sessions
// @Summary Change Password
// @Tags User
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param request body ChangePasswordRequest true "Password Change Data"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/user/change-password [post]
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p := GetPrincipal(r.Context())
	if p == nil || h.passwords == nil {
		respondError(w, http.StatusUnauthorized, access.CodeUnauthenticated)
		return
	}

	var req ChangePasswordRequest
	if err := h.decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	err := h.passwords.ChangePassword(r.Context(), p.Email, req.OldPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			respondError(w, http.StatusUnauthorized, "invalid_old_password")
		case errors.Is(err, identity.ErrAccountLocked):
			respondError(w, http.StatusLocked, access.CodeAccountLocked)
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "weak_password")
		default:
			slog.ErrorContext(r.Context(), "failed to change password", logger.PrincipalID(p.ID), logger.Error(err))
			respondError(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}

	h.clearSessionCookie(w)

	respondJSON(w, http.StatusOK, map[string]string{
		"message":     "password changed",
		"redirect_to": h.controller.Policy().Routes.LoginPath,
	})
}

// GetCurrentPrincipal returns the signed-in principal
// @Summary Current principal
// @Tags User
// @Produce json
// @Security CookieAuth
// @Success 200 {object} PrincipalResponse
// @Failure 401 {object} map[string]string
// @Router /api/me [get]
func (h *Handler) GetCurrentPrincipal(w http.ResponseWriter, r *http.Request) {
	p := GetPrincipal(r.Context())
	if p == nil {
		respondError(w, http.StatusUnauthorized, access.CodeUnauthenticated)
		return
	}
	respondJSON(w, http.StatusOK, h.principalResponse(p))
}

func (h *Handler) principalResponse(p *directory.Principal) PrincipalResponse {
	if p == nil {
		return PrincipalResponse{CompanyIDs: []string{}}
	}
	resp := PrincipalResponse{
		ID:          p.ID,
		Email:       p.Email,
		Role:        string(p.Role),
		CompanyIDs:  p.CompanyIDs,
		LastLoginAt: p.LastLoginAt,
	}
	if resp.CompanyIDs == nil {
		resp.CompanyIDs = []string{}
	}
	if h.controller.Policy().ProcessGating {
		pc := h.controller.ProcessContext(p)
		resp.Process = &pc
	}
	return resp
}
