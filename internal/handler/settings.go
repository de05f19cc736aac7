package handler

import (
	"log/slog"
	"net/http"

	"userservice/internal/domain/models"
	"userservice/internal/domain/services"
	"userservice/internal/httputil"
)

// SettingsHandler handles user settings HTTP requests
type SettingsHandler struct {
	service services.UserService
	logger  *slog.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(service services.UserService, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		service: service,
		logger:  logger,
	}
}

// GetSettings retrieves the caller's settings
// GET /users/me/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	setting, err := h.service.GetSettings(r.Context(), user.Sub)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, setting)
}

// UpdateSettings updates the caller's settings
// PUT /users/me/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.UpdateSettingRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondParseError(w, err)
		return
	}

	setting, err := h.service.UpdateSettings(r.Context(), user.Sub, &req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, setting)
}
