package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"userservice/internal/domain"
	"userservice/internal/domain/models"
	"userservice/internal/httputil"
)

// handleError converts domain errors to HTTP responses
func handleError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, notFoundDetail(err))
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrIdentityProvider):
		httputil.RespondError(w, http.StatusServiceUnavailable, domain.ErrIdentityProvider.Error())
	default:
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", httputil.GetRequestID(r),
			"error", err,
		)
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// notFoundDetail prefers the NotFoundError message over the wrapped chain
func notFoundDetail(err error) string {
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		return nf.Message
	}
	return domain.ErrNotFound.Error()
}

// requireUser returns the authenticated user or answers 401
func requireUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user := httputil.GetUser(r)
	if user == nil {
		httputil.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return user, true
}
