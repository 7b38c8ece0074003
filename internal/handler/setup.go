package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/snuffspec/internal/service"
)

// SetupHandler creates the first administrator on a fresh install.
// While no profile exists the gate lets these routes through without a
// session; CreateFirstAdmin checks the count again.
type SetupHandler struct {
	admin  *service.AdminService
	logger *slog.Logger
}

func NewSetupHandler(admin *service.AdminService, logger *slog.Logger) *SetupHandler {
	return &SetupHandler{admin: admin, logger: logger}
}

// HandleStatus reports whether setup is still needed.
//
// HTTP: GET /setup
func (h *SetupHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := h.admin.CountUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"needsSetup": count == 0})
}

// HandleCreateAdmin creates the first administrator.
//
// HTTP: POST /setup/create-admin  {"email": "owner@shop.com", "fullName": "Owner"}
func (h *SetupHandler) HandleCreateAdmin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		FullName string `json:"fullName"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.admin.CreateFirstAdmin(r.Context(), body.Email, body.FullName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, user)
}
