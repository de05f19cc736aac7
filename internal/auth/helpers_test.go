package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/require"

	"userservice/internal/domain/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testKey struct {
	kid  string
	priv *rsa.PrivateKey
}

func newTestKey(t *testing.T, kid string) testKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return testKey{kid: kid, priv: priv}
}

// publicJWK returns the JWK for k as a generic map so tests can tweak members
func (k testKey) publicJWK(t *testing.T) map[string]any {
	t.Helper()
	key, err := jwk.FromRaw(&k.priv.PublicKey)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, k.kid))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))
	require.NoError(t, key.Set(jwk.KeyUsageKey, "sig"))

	raw, err := json.Marshal(key)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func (k testKey) signingKey() *SigningKey {
	return &SigningKey{
		KeyID:     k.kid,
		KeyType:   "RSA",
		Algorithm: "RS256",
		Use:       "sig",
		Key:       &k.priv.PublicKey,
	}
}

func jwksBody(t *testing.T, entries ...map[string]any) []byte {
	t.Helper()
	if entries == nil {
		entries = []map[string]any{}
	}
	b, err := json.Marshal(map[string]any{"keys": entries})
	require.NoError(t, err)
	return b
}

// jwksServer serves body from a certs endpoint and counts requests
type jwksServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newJWKSServer(t *testing.T, status int, body []byte) *jwksServer {
	t.Helper()
	s := &jwksServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

// signToken signs claims with k using RS256
func signToken(t *testing.T, k testKey, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = k.kid
	signed, err := token.SignedString(k.priv)
	require.NoError(t, err)
	return signed
}

func validClaims(sub string, now time.Time) *models.TokenClaims {
	return &models.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "https://keycloak.test/realms/app",
			Audience:  jwt.ClaimStrings{"account"},
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
		PreferredUsername: "alice",
	}
}
