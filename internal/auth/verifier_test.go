package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userservice/internal/domain/models"
)

// staticKeys is a KeySource over a fixed set of keys that counts lookups
type staticKeys struct {
	keys    map[string]*SigningKey
	err     error
	lookups atomic.Int32
}

func newStaticKeys(keys ...*SigningKey) *staticKeys {
	s := &staticKeys{keys: make(map[string]*SigningKey)}
	for _, k := range keys {
		s.keys[k.KeyID] = k
	}
	return s
}

func (s *staticKeys) GetKey(_ context.Context, kid string) (*SigningKey, error) {
	s.lookups.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	key, ok := s.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}
	return key, nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestVerifier(keys KeySource, opts ...VerifierOption) *JWTVerifier {
	opts = append([]VerifierOption{WithClock(func() time.Time { return testNow })}, opts...)
	return NewJWTVerifier(keys, discardLogger(), opts...)
}

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestJWTVerifier_Verify(t *testing.T) {
	k1 := newTestKey(t, "k1")
	keys := newStaticKeys(k1.signingKey())
	verifier := newTestVerifier(keys)

	token := signToken(t, k1, validClaims("sub-123", testNow))

	verified, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "sub-123", verified.Subject())
	assert.Equal(t, "alice", verified.Claims.PreferredUsername)
	assert.Equal(t, models.Identity{Kind: models.IdentityKindUser, ID: "sub-123"}, verified.Identity)
	assert.Equal(t, int32(1), keys.lookups.Load())
}

func TestJWTVerifier_ClientIdentity(t *testing.T) {
	k1 := newTestKey(t, "k1")
	verifier := newTestVerifier(newStaticKeys(k1.signingKey()))

	t.Run("client_id claim", func(t *testing.T) {
		claims := validClaims("svc-sub", testNow)
		claims.ClientID = "billing"
		claims.PreferredUsername = "service-account-billing"

		verified, err := verifier.Verify(context.Background(), signToken(t, k1, claims))
		require.NoError(t, err)
		assert.True(t, verified.Identity.IsClient())
		assert.Equal(t, "billing", verified.Identity.ClientID)
		assert.Equal(t, "svc-sub", verified.Identity.ID)
	})

	t.Run("service account username falls back to azp", func(t *testing.T) {
		claims := validClaims("svc-sub", testNow)
		claims.PreferredUsername = "service-account-reports"
		claims.AuthorizedParty = "reports"

		verified, err := verifier.Verify(context.Background(), signToken(t, k1, claims))
		require.NoError(t, err)
		assert.Equal(t, models.IdentityKindClient, verified.Identity.Kind)
		assert.Equal(t, "reports", verified.Identity.ClientID)
	})
}

func TestJWTVerifier_Rejections(t *testing.T) {
	k1 := newTestKey(t, "k1")
	impostor := newTestKey(t, "k1")

	valid := signToken(t, k1, validClaims("sub-123", testNow))
	parts := strings.Split(valid, ".")

	expired := validClaims("sub-123", testNow)
	expired.ExpiresAt = jwt.NewNumericDate(testNow.Add(-time.Minute))

	notYet := validClaims("sub-123", testNow)
	notYet.NotBefore = jwt.NewNumericDate(testNow.Add(time.Hour))

	noExp := validClaims("sub-123", testNow)
	noExp.ExpiresAt = nil

	noSub := validClaims("", testNow)

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("sub-123", testNow))
	hs.Header["kid"] = "k1"
	hsToken, err := hs.SignedString([]byte("secret"))
	require.NoError(t, err)

	noneToken := b64(`{"alg":"none","kid":"k1"}`) + "." + parts[1] + "."

	noKid := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims("sub-123", testNow))
	noKidToken, err := noKid.SignedString(k1.priv)
	require.NoError(t, err)

	// Correctly signed, but the payload is not JSON
	garbageSigning := parts[0] + "." + b64("garbage")
	garbageSig, err := jwt.SigningMethodRS256.Sign(garbageSigning, k1.priv)
	require.NoError(t, err)
	signedGarbage := garbageSigning + "." + base64.RawURLEncoding.EncodeToString(garbageSig)

	tests := []struct {
		name        string
		token       string
		want        error
		skipsLookup bool
	}{
		{"not a jwt", "abc", ErrMalformedToken, true},
		{"two segments", parts[0] + "." + parts[1], ErrMalformedToken, true},
		{"header not base64", "%%%." + parts[1] + "." + parts[2], ErrMalformedToken, true},
		{"header not json", b64("nope") + "." + parts[1] + "." + parts[2], ErrMalformedToken, true},
		{"missing kid", noKidToken, ErrMalformedToken, true},
		{"signature not base64", parts[0] + "." + parts[1] + ".@@@", ErrMalformedToken, true},
		{"hs256", hsToken, ErrAlgorithmNotAllowed, true},
		{"alg none", noneToken, ErrInvalidSignature, true},
		{"signed by another key", signToken(t, impostor, validClaims("sub-123", testNow)), ErrInvalidSignature, false},
		{"tampered payload", parts[0] + "." + b64(`{"sub":"mallory","exp":9999999999}`) + "." + parts[2], ErrInvalidSignature, false},
		{"tampered payload not json", parts[0] + "." + b64("garbage") + "." + parts[2], ErrInvalidSignature, false},
		{"signed payload not json", signedGarbage, ErrMalformedClaims, false},
		{"expired", signToken(t, k1, expired), ErrExpired, false},
		{"not yet valid", signToken(t, k1, notYet), ErrExpired, false},
		{"missing exp", signToken(t, k1, noExp), ErrMalformedClaims, false},
		{"missing sub", signToken(t, k1, noSub), ErrMalformedClaims, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := newStaticKeys(k1.signingKey())
			verifier := newTestVerifier(keys)

			verified, err := verifier.Verify(context.Background(), tt.token)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, verified)
			if tt.skipsLookup {
				assert.Equal(t, int32(0), keys.lookups.Load(), "key lookup must not happen")
			}
		})
	}
}

func TestJWTVerifier_KeySourceFailures(t *testing.T) {
	k1 := newTestKey(t, "k1")
	token := signToken(t, k1, validClaims("sub-123", testNow))

	t.Run("unknown kid", func(t *testing.T) {
		verifier := newTestVerifier(newStaticKeys())

		_, err := verifier.Verify(context.Background(), token)
		require.ErrorIs(t, err, ErrVerificationUnavailable)
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("fetch failed", func(t *testing.T) {
		keys := newStaticKeys()
		keys.err = fmt.Errorf("%w: unexpected status 503", ErrKeyFetchFailed)
		verifier := newTestVerifier(keys)

		_, err := verifier.Verify(context.Background(), token)
		require.ErrorIs(t, err, ErrVerificationUnavailable)
		assert.ErrorIs(t, err, ErrKeyFetchFailed)
	})
}

func TestJWTVerifier_KeyConstraints(t *testing.T) {
	k1 := newTestKey(t, "k1")
	token := signToken(t, k1, validClaims("sub-123", testNow))

	tests := []struct {
		name   string
		mutate func(*SigningKey)
		want   error
	}{
		{"key for another algorithm", func(k *SigningKey) { k.Algorithm = "RS512" }, ErrInvalidSignature},
		{"encryption key", func(k *SigningKey) { k.Use = "enc" }, ErrInvalidSignature},
		{"alg and use omitted", func(k *SigningKey) { k.Algorithm, k.Use = "", "" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := k1.signingKey()
			tt.mutate(key)
			verifier := newTestVerifier(newStaticKeys(key))

			_, err := verifier.Verify(context.Background(), token)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestJWTVerifier_Options(t *testing.T) {
	k1 := newTestKey(t, "k1")
	keys := newStaticKeys(k1.signingKey())
	token := signToken(t, k1, validClaims("sub-123", testNow))

	t.Run("issuer match", func(t *testing.T) {
		_, err := newTestVerifier(keys, WithIssuer("https://keycloak.test/realms/app")).Verify(context.Background(), token)
		require.NoError(t, err)
	})

	t.Run("issuer mismatch", func(t *testing.T) {
		_, err := newTestVerifier(keys, WithIssuer("https://other/realms/app")).Verify(context.Background(), token)
		require.ErrorIs(t, err, ErrMalformedClaims)
	})

	t.Run("audience mismatch", func(t *testing.T) {
		_, err := newTestVerifier(keys, WithAudience("admin-console")).Verify(context.Background(), token)
		require.ErrorIs(t, err, ErrMalformedClaims)
	})

	t.Run("leeway tolerates small skew", func(t *testing.T) {
		claims := validClaims("sub-123", testNow)
		claims.ExpiresAt = jwt.NewNumericDate(testNow.Add(-10 * time.Second))
		skewed := signToken(t, k1, claims)

		_, err := newTestVerifier(keys).Verify(context.Background(), skewed)
		require.ErrorIs(t, err, ErrExpired)

		_, err = newTestVerifier(keys, WithLeeway(30*time.Second)).Verify(context.Background(), skewed)
		require.NoError(t, err)
	})
}

func TestJWTVerifier_WithKeyCache(t *testing.T) {
	k1 := newTestKey(t, "k1")
	srv := newJWKSServer(t, 200, jwksBody(t, k1.publicJWK(t)))
	cache := newTestKeyCache(srv.URL)
	verifier := newTestVerifier(cache)

	for range 3 {
		verified, err := verifier.Verify(context.Background(), signToken(t, k1, validClaims("sub-123", testNow)))
		require.NoError(t, err)
		assert.Equal(t, "sub-123", verified.Subject())
	}
	assert.Equal(t, int32(1), srv.hits.Load())
}
