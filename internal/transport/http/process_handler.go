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

	"github.com/go-chi/chi/v5"
	"github.com/opentrusty/staffgate/internal/access"
	"github.com/opentrusty/staffgate/internal/observability/logger"
	"github.com/opentrusty/staffgate/internal/process"
)

// SelectProcessRequest selects or switches the current process
type SelectProcessRequest struct {
	Process  string `json:"process" validate:"required,max=64" example:"recruitment"`
	Remember bool   `json:"remember"`
}

// SelectProcessResponse is returned after a committed selection
type SelectProcessResponse struct {
	Success    bool            `json:"success"`
	Process    process.Type    `json:"process"`
	RedirectTo string          `json:"redirect_to"`
	Context    process.Context `json:"context"`
}

// GetProcessContext returns the process state of the current principal
// @Summary Process context
// @Tags Process
// @Produce json
// @Security CookieAuth
// @Success 200 {object} process.Context
// @Router /api/set-process [get]
func (h *Handler) GetProcessContext(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.controller.ProcessContext(GetPrincipal(r.Context())))
}

// SetProcess commits the process selection
// @Summary Select process
// @Tags Process
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param request body SelectProcessRequest true "Process"
// @Success 200 {object} SelectProcessResponse
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /api/set-process [post]
func (h *Handler) SetProcess(w http.ResponseWriter, r *http.Request) {
	h.commitProcess(w, r, false)
}

// SwitchProcess moves the current principal to another held process
// @Summary Switch process
// @Tags Process
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param request body SelectProcessRequest true "Process"
// @Success 200 {object} SelectProcessResponse
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /api/user/switch-process [post]
func (h *Handler) SwitchProcess(w http.ResponseWriter, r *http.Request) {
	h.commitProcess(w, r, true)
}

func (h *Handler) commitProcess(w http.ResponseWriter, r *http.Request, switching bool) {
	principalID := GetPrincipalID(r.Context())

	var req SelectProcessRequest
	if err := h.decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	candidate, ok := process.Parse(req.Process)
	if !ok {
		respondError(w, http.StatusBadRequest, access.CodeInvalidProcess)
		return
	}

	meta := access.Request{
		Method:    r.Method,
		Path:      r.URL.Path,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}

	var (
		sel *access.Selection
		err error
	)
	if switching {
		sel, err = h.controller.SwitchProcess(r.Context(), principalID, candidate, meta)
	} else {
		sel, err = h.controller.SelectProcess(r.Context(), principalID, candidate, meta, req.Remember)
	}
	if err != nil {
		switch {
		case errors.Is(err, access.ErrProcessSelectionDenied):
			respondError(w, http.StatusForbidden, access.CodeProcessDenied)
		case errors.Is(err, access.ErrUnauthenticated):
			respondError(w, http.StatusUnauthorized, access.CodeUnauthenticated)
		case errors.Is(err, access.ErrInactiveAccount):
			h.clearSessionCookie(w)
			respondError(w, http.StatusUnauthorized, access.CodeAccountInactive)
		case errors.Is(err, access.ErrOrphanedIdentity):
			h.clearSessionCookie(w)
			respondError(w, http.StatusForbidden, access.CodeAccessDenied)
		case errors.Is(err, access.ErrUpstreamUnavailable):
			respondError(w, http.StatusServiceUnavailable, access.CodeUpstreamUnavailable)
		default:
			slog.ErrorContext(r.Context(), "failed to select process", logger.PrincipalID(principalID), logger.Error(err))
			respondError(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}

	respondJSON(w, http.StatusOK, SelectProcessResponse{
		Success:    true,
		Process:    candidate,
		RedirectTo: sel.RedirectTo,
		Context:    sel.Permission.Context(h.controller.Policy().Routes.SelectionPath),
	})
}

// SelectionPage lists the processes the principal can choose from
// @Summary Process selection screen
// @Tags Process
// @Produce json
// @Security CookieAuth
// @Success 200 {object} process.Context
// @Router /select-process [get]
func (h *Handler) SelectionPage(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.controller.ProcessContext(GetPrincipal(r.Context())))
}

// ProcessDashboard is the landing page of one process
// @Summary Process dashboard
// @Tags Process
// @Produce json
// @Security CookieAuth
// @Param process path string true "Process slug"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /{process}/dashboard [get]
func (h *Handler) ProcessDashboard(w http.ResponseWriter, r *http.Request) {
	// The process must be the one the classifier gated on.
	t, ok := process.ParseSlug(chi.URLParam(r, "process"))
	if d, found := GetDecision(r.Context()); !ok || !found || d.Route.Process != t {
		respondError(w, http.StatusNotFound, "not_found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"process":   t,
		"principal": h.principalResponse(GetPrincipal(r.Context())),
	})
}
