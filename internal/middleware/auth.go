package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"userservice/internal/auth"
	"userservice/internal/httputil"
	"userservice/internal/metrics"
)

// errMissingCredentials covers a missing header, a non-Bearer scheme and an empty token.
var errMissingCredentials = errors.New("missing bearer credentials")

// AuthMiddleware authenticates every request it wraps.
//
// Each request runs the same sequence: extract the bearer token, verify it,
// resolve (or provision) the local user, then attach token and user to the
// request context. Every credential or verification failure answers 401 with
// a generic body; the cause is only logged. A storage failure while resolving
// the user answers 500. Nothing is cached across requests.
func AuthMiddleware(verifier auth.TokenVerifier, resolver auth.UserResolver, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractBearerToken(r)
			if err != nil {
				m.AuthResult("missing_credentials")
				logger.Debug("request rejected", "reason", err.Error(), "path", r.URL.Path)
				unauthorized(w)
				return
			}

			verified, err := verifier.Verify(r.Context(), token)
			if err != nil {
				reason := failureReason(err)
				m.AuthResult(reason)
				logVerificationFailure(logger, r, reason, err)
				unauthorized(w)
				return
			}

			user, err := resolver.GetOrCreateUser(r.Context(), verified.Subject())
			if err != nil {
				m.AuthResult("storage_unavailable")
				logger.Error("user resolution failed",
					"subject", verified.Subject(),
					"path", r.URL.Path,
					"error", err,
				)
				httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			m.AuthResult("ok")
			next.ServeHTTP(w, httputil.WithAuth(r, verified, user))
		})
	}
}

// extractBearerToken reads "Authorization: Bearer <token>". The scheme is
// matched case-insensitively.
func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errMissingCredentials
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errMissingCredentials
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", errMissingCredentials
	}
	return token, nil
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="user-service"`)
	httputil.RespondError(w, http.StatusUnauthorized, "unauthorized")
}

// failureReason names the verification failure kind for logs and metrics.
func failureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrKeyFetchFailed):
		return "key_fetch_failed"
	case errors.Is(err, auth.ErrKeyNotFound):
		return "key_not_found"
	case errors.Is(err, auth.ErrVerificationUnavailable):
		return "verification_unavailable"
	case errors.Is(err, auth.ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, auth.ErrAlgorithmNotAllowed):
		return "algorithm_not_allowed"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, auth.ErrExpired):
		return "expired"
	case errors.Is(err, auth.ErrMalformedClaims):
		return "malformed_claims"
	default:
		return "unknown"
	}
}

// logVerificationFailure logs infrastructure failures at error level so they
// can be told apart from bad credentials, which log at warn.
func logVerificationFailure(logger *slog.Logger, r *http.Request, reason string, err error) {
	attrs := []any{
		"reason", reason,
		"path", r.URL.Path,
		"error", err,
	}
	if errors.Is(err, auth.ErrKeyFetchFailed) {
		logger.Error("token verification unavailable", attrs...)
		return
	}
	logger.Warn("token rejected", attrs...)
}
