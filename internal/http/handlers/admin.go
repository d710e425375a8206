package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/finboard/server/internal/apperr"
	"github.com/finboard/server/internal/auth"
	"github.com/finboard/server/internal/middleware"
	"github.com/finboard/server/internal/model"
	"github.com/finboard/server/internal/respond"
)

// AdminHandler handles account administration endpoints. Routes are mounted behind RequireRole(admin).
type AdminHandler struct {
	service    *auth.Service
	translator *respond.Translator
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(service *auth.Service, translator *respond.Translator) *AdminHandler {
	return &AdminHandler{service: service, translator: translator}
}

type statusRequest struct {
	Status string `json:"status"`
}

type roleRequest struct {
	Role string `json:"role"`
}

// HandleSetStatus handles PATCH /admin/users/{id}/status
func (h *AdminHandler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	actor, target, ok := h.subjects(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		h.translator.Error(w, r, err)
		return
	}

	if err := h.service.ChangeStatus(r.Context(), actor, target, model.Status(req.Status)); err != nil {
		h.translator.Error(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, nil, "User status updated")
}

// HandleSetRole handles PATCH /admin/users/{id}/role
func (h *AdminHandler) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	actor, target, ok := h.subjects(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := decodeBody(r, &req); err != nil {
		h.translator.Error(w, r, err)
		return
	}

	if err := h.service.ChangeRole(r.Context(), actor, target, model.Role(req.Role)); err != nil {
		h.translator.Error(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, nil, "User role updated")
}

// HandleDelete handles DELETE /admin/users/{id}
func (h *AdminHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, target, ok := h.subjects(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteUser(r.Context(), actor, target); err != nil {
		h.translator.Error(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, nil, "User deleted")
}

// subjects returns the acting admin and the target user id from the path.
func (h *AdminHandler) subjects(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	actor, ok := middleware.GetUser(r.Context())
	if !ok {
		h.translator.Error(w, r, apperr.Authentication("Authentication required"))
		return uuid.Nil, uuid.Nil, false
	}
	target, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.translator.Error(w, r, apperr.Validation("Invalid user id",
			apperr.FieldError{Field: "id", Message: "Must be a valid UUID"}))
		return uuid.Nil, uuid.Nil, false
	}
	return actor.ID, target, true
}
