package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"userservice/internal/domain/models"
	"userservice/internal/domain/services"
	"userservice/internal/httputil"
)

// UserHandler handles user profile HTTP requests
type UserHandler struct {
	service services.UserService
	logger  *slog.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(service services.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		service: service,
		logger:  logger,
	}
}

// GetCurrentUser returns the caller's profile
// GET /users/me?full_info=true
func (h *UserHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	fullInfo := false
	if raw := r.URL.Query().Get("full_info"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "full_info must be a boolean")
			return
		}
		fullInfo = parsed
	}

	if !fullInfo {
		httputil.RespondJSON(w, http.StatusOK, user.BasicInfo())
		return
	}

	info, err := h.service.GetFullInfo(r.Context(), user)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, info)
}

// UpdateCurrentUser applies a partial update to the caller's profile
// PUT /users/me
func (h *UserHandler) UpdateCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.UpdateUserRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondParseError(w, err)
		return
	}

	info, err := h.service.UpdateCurrentUser(r.Context(), user, &req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, info)
}

// GetUserBySub returns another user's public profile
// GET /users/{sub}
func (h *UserHandler) GetUserBySub(w http.ResponseWriter, r *http.Request) {
	sub := strings.TrimSpace(r.PathValue("sub"))
	if sub == "" {
		httputil.RespondError(w, http.StatusBadRequest, "sub is required")
		return
	}

	info, err := h.service.GetUserBySub(r.Context(), sub)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, info)
}

// GetUserByUsername resolves a username through the identity provider
// GET /users/username/{username}
func (h *UserHandler) GetUserByUsername(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.PathValue("username"))
	if username == "" {
		httputil.RespondError(w, http.StatusBadRequest, "username is required")
		return
	}

	info, err := h.service.GetUserByUsername(r.Context(), username)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, info)
}

// GET /users/display_name/{display_name}
func (h *UserHandler) GetUserByDisplayName(w http.ResponseWriter, r *http.Request) {
	displayName := strings.TrimSpace(r.PathValue("display_name"))
	if displayName == "" {
		httputil.RespondError(w, http.StatusBadRequest, "display_name is required")
		return
	}

	info, err := h.service.GetUserByDisplayName(r.Context(), displayName)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, info)
}

// GetUsersBySubs returns one page of public profiles for a list of subjects
// POST /users/bart
func (h *UserHandler) GetUsersBySubs(w http.ResponseWriter, r *http.Request) {
	var req models.GetUsersBySubsRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondParseError(w, err)
		return
	}

	page, err := h.service.GetUsersBySubs(r.Context(), &req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, page)
}

type profilePictureResponse struct {
	URL string `json:"url"`
}

// ProfilePicture returns a signed upload URL for the caller's profile picture
// POST /users/me/profile-picture
func (h *UserHandler) ProfilePicture(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	signed, err := h.service.ProfilePictureUploadURL(r.Context(), user.Sub)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, profilePictureResponse{URL: signed})
}
