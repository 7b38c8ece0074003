package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snuffspec/internal/access"
	"github.com/sakif/snuffspec/internal/model"
	"github.com/sakif/snuffspec/internal/service"
)

// AdminHandler serves the user management screen. The gate already keeps
// non-admins out; AdminService checks the role again on every call.
type AdminHandler struct {
	admin  *service.AdminService
	logger *slog.Logger
}

func NewAdminHandler(admin *service.AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

// HandleList returns every user with a profile.
//
// HTTP: GET /admin/users
func (h *AdminHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, _ := access.IdentityFromContext(r.Context())
	users, err := h.admin.ListUsers(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nonNil(users))
}

// HandleCreate creates an account.
//
// HTTP: POST /admin/users  {"email": "a@b.com", "fullName": "A B", "role": "user"}
func (h *AdminHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.CreateUserInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	actor, _ := access.IdentityFromContext(r.Context())
	user, err := h.admin.CreateUser(r.Context(), actor, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, user)
}

// HandleUpdateRole sets a user's role.
//
// HTTP: PUT /admin/users/{id}/role  {"role": "admin"}
func (h *AdminHandler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Role model.Role `json:"role"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	actor, _ := access.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if err := h.admin.UpdateUserRole(r.Context(), actor, id, body.Role); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": id, "role": string(body.Role)})
}

// HandleDelete removes an account: identity, profile and records.
//
// HTTP: DELETE /admin/users/{id}
func (h *AdminHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := access.IdentityFromContext(r.Context())
	if err := h.admin.DeleteUser(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
