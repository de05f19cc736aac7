package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userservice/internal/auth"
	"userservice/internal/domain/models"
	"userservice/internal/httputil"
	"userservice/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeVerifier struct {
	err   error
	calls atomic.Int32
	got   string
}

func (f *fakeVerifier) Verify(_ context.Context, token string) (*models.VerifiedToken, error) {
	f.calls.Add(1)
	f.got = token
	if f.err != nil {
		return nil, f.err
	}
	claims := &models.TokenClaims{}
	claims.Subject = "sub-123"
	return &models.VerifiedToken{
		Claims:   claims,
		Identity: models.IdentityFromClaims(claims),
	}, nil
}

type fakeResolver struct {
	err   error
	calls atomic.Int32
}

func (f *fakeResolver) GetOrCreateUser(_ context.Context, subject string) (*models.User, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{Sub: subject, DisplayName: "Alice"}, nil
}

// echoHandler reports what the middleware attached to the request
func echoHandler(reached *atomic.Int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached.Add(1)
		token := httputil.GetVerifiedToken(r)
		user := httputil.GetUser(r)
		httputil.RespondJSON(w, http.StatusOK, map[string]string{
			"token_subject": token.Subject(),
			"user_sub":      user.Sub,
			"display_name":  user.DisplayName,
		})
	})
}

func serve(t *testing.T, verifier auth.TokenVerifier, resolver auth.UserResolver, m *metrics.Metrics, header string) (*httptest.ResponseRecorder, int32) {
	t.Helper()
	var reached atomic.Int32
	h := AuthMiddleware(verifier, resolver, discardLogger(), m)(echoHandler(&reached))

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, reached.Load()
}

func TestAuthMiddleware_MissingCredentials(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"basic scheme", "Basic dXNlcjpwYXNz"},
		{"scheme only", "Bearer"},
		{"empty token", "Bearer   "},
		{"token without scheme", "eyJhbGciOiJSUzI1NiJ9.e30.sig"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := &fakeVerifier{}
			resolver := &fakeResolver{}

			rec, reached := serve(t, verifier, resolver, nil, tt.header)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			assert.Contains(t, rec.Body.String(), "unauthorized")
			assert.Zero(t, reached)
			assert.Zero(t, verifier.calls.Load())
			assert.Zero(t, resolver.calls.Load())
		})
	}
}

func TestAuthMiddleware_VerificationFailures(t *testing.T) {
	failures := []error{
		auth.ErrMalformedToken,
		auth.ErrAlgorithmNotAllowed,
		auth.ErrInvalidSignature,
		auth.ErrExpired,
		auth.ErrMalformedClaims,
		fmt.Errorf("%w: %w", auth.ErrVerificationUnavailable, auth.ErrKeyNotFound),
		fmt.Errorf("%w: %w", auth.ErrVerificationUnavailable, auth.ErrKeyFetchFailed),
	}

	for _, failure := range failures {
		t.Run(failure.Error(), func(t *testing.T) {
			verifier := &fakeVerifier{err: failure}
			resolver := &fakeResolver{}

			rec, reached := serve(t, verifier, resolver, nil, "Bearer some.jwt.token")

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Zero(t, reached)
			assert.Zero(t, resolver.calls.Load())

			// The body never reveals which check failed
			var problem map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, "unauthorized", problem["detail"])
			assert.NotContains(t, rec.Body.String(), failure.Error())
		})
	}
}

func TestAuthMiddleware_ResolverFailure(t *testing.T) {
	verifier := &fakeVerifier{}
	resolver := &fakeResolver{err: fmt.Errorf("%w: connection refused", auth.ErrStorageUnavailable)}

	rec, reached := serve(t, verifier, resolver, nil, "Bearer some.jwt.token")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Zero(t, reached)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestAuthMiddleware_Success(t *testing.T) {
	verifier := &fakeVerifier{}
	resolver := &fakeResolver{}
	m := metrics.New()

	rec, reached := serve(t, verifier, resolver, m, "bearer  some.jwt.token ")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), reached)
	assert.Equal(t, "some.jwt.token", verifier.got)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "sub-123", body["token_subject"])
	assert.Equal(t, "sub-123", body["user_sub"])
	assert.Equal(t, "Alice", body["display_name"])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthRequestsTotal.WithLabelValues("ok")))
}

func TestAuthMiddleware_NoStateAcrossRequests(t *testing.T) {
	verifier := &fakeVerifier{}
	resolver := &fakeResolver{}
	var reached atomic.Int32
	h := AuthMiddleware(verifier, resolver, discardLogger(), nil)(echoHandler(&reached))

	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
		req.Header.Set("Authorization", "Bearer same.jwt.token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, int32(3), verifier.calls.Load())
	assert.Equal(t, int32(3), resolver.calls.Load())
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: %w", auth.ErrVerificationUnavailable, auth.ErrKeyFetchFailed), "key_fetch_failed"},
		{fmt.Errorf("%w: %w", auth.ErrVerificationUnavailable, auth.ErrKeyNotFound), "key_not_found"},
		{auth.ErrAlgorithmNotAllowed, "algorithm_not_allowed"},
		{auth.ErrInvalidSignature, "invalid_signature"},
		{auth.ErrExpired, "expired"},
		{auth.ErrMalformedClaims, "malformed_claims"},
		{auth.ErrMalformedToken, "malformed_token"},
		{errors.New("other"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, failureReason(tt.err))
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "BEARER "+strings.Repeat("a", 10))

	token, err := extractBearerToken(req)
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaaaa", token)
}
