package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userservice/internal/auth"
	"userservice/internal/domain/models"
	"userservice/internal/repository/memory"
)

// newChain builds the production auth stack against a certs server that
// answers with status and body.
func newChain(t *testing.T, status int, body []byte) (http.Handler, *memory.UserRepository) {
	t.Helper()
	certs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(certs.Close)

	cache := auth.NewKeyCache(certs.URL, auth.WithFetchTimeout(2*time.Second), auth.WithKeyCacheLogger(discardLogger()))
	verifier := auth.NewJWTVerifier(cache, discardLogger())
	repo := memory.NewUserRepository()
	resolver := auth.NewIdentityResolver(repo, 2*time.Second, discardLogger(), nil)

	h := AuthMiddleware(verifier, resolver, discardLogger(), nil)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
	return h, repo
}

func signedToken(t *testing.T, priv *rsa.PrivateKey, kid, sub string) string {
	t.Helper()
	claims := &models.TokenClaims{}
	claims.Subject = sub
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	claims.IssuedAt = jwt.NewNumericDate(time.Now())

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(priv)
	require.NoError(t, err)
	return signed
}

func certsBody(t *testing.T, kid string, pub *rsa.PublicKey) []byte {
	t.Helper()
	key, err := jwk.FromRaw(pub)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, kid))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))
	require.NoError(t, key.Set(jwk.KeyUsageKey, "sig"))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(key))
	body, err := json.Marshal(set)
	require.NoError(t, err)
	return body
}

func doAuthRequest(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthChain_CertsUnavailable(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	h, repo := newChain(t, http.StatusServiceUnavailable, []byte(`{"error":"down"}`))

	rec := doAuthRequest(h, signedToken(t, priv, "k1", "sub-123"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "503")
	assert.Equal(t, 0, repo.Count())
}

func TestAuthChain_ProvisionsOnFirstRequest(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	h, repo := newChain(t, http.StatusOK, certsBody(t, "k1", &priv.PublicKey))
	token := signedToken(t, priv, "k1", "sub-123")

	for range 2 {
		rec := doAuthRequest(h, token)
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
	assert.Equal(t, 1, repo.Count())
	assert.Equal(t, 1, repo.Writes())

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rec := doAuthRequest(h, signedToken(t, other, "k1", "sub-456"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, repo.Count())
}
