package httputil

import (
	"context"
	"net/http"

	"userservice/internal/domain/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	tokenKey contextKey = "verifiedToken"
	userKey  contextKey = "user"
)

// WithAuth attaches the verified token and the resolved local user to the request context
func WithAuth(r *http.Request, token *models.VerifiedToken, user *models.User) *http.Request {
	ctx := context.WithValue(r.Context(), tokenKey, token)
	ctx = context.WithValue(ctx, userKey, user)
	return r.WithContext(ctx)
}

// GetVerifiedToken retrieves the verified token, or nil on unauthenticated routes
func GetVerifiedToken(r *http.Request) *models.VerifiedToken {
	token, _ := r.Context().Value(tokenKey).(*models.VerifiedToken)
	return token
}

// GetUser retrieves the authenticated user, or nil on unauthenticated routes
func GetUser(r *http.Request) *models.User {
	user, _ := r.Context().Value(userKey).(*models.User)
	return user
}

// GetSubject returns the authenticated subject, or "" if not found
func GetSubject(r *http.Request) string {
	if user := GetUser(r); user != nil {
		return user.Sub
	}
	return ""
}

const requestIDKey contextKey = "requestID"

// WithRequestID adds the request id to the request context
func WithRequestID(r *http.Request, id string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), requestIDKey, id))
}

// GetRequestID retrieves the request id, returns empty string if not found
func GetRequestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}
