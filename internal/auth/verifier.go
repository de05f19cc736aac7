package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"userservice/internal/domain/models"
)

// allowedAlgorithm is the only signing algorithm accepted. Checking it before
// the key lookup rules out HS256-with-public-key and "none" confusion.
const allowedAlgorithm = "RS256"

// JWTVerifier verifies Keycloak access tokens against keys from a KeySource.
type JWTVerifier struct {
	keys   KeySource
	logger *slog.Logger

	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
	parser   *jwt.Parser
}

// VerifierOption configures a JWTVerifier.
type VerifierOption func(*JWTVerifier)

// WithIssuer requires the iss claim to equal issuer.
func WithIssuer(issuer string) VerifierOption {
	return func(v *JWTVerifier) { v.issuer = issuer }
}

// WithAudience requires the aud claim to contain audience.
func WithAudience(audience string) VerifierOption {
	return func(v *JWTVerifier) { v.audience = audience }
}

// WithLeeway tolerates clock skew when checking exp, nbf and iat.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *JWTVerifier) { v.leeway = d }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *JWTVerifier) { v.now = now }
}

// NewJWTVerifier creates a verifier that resolves signing keys through keys.
func NewJWTVerifier(keys KeySource, logger *slog.Logger, opts ...VerifierOption) *JWTVerifier {
	v := &JWTVerifier{
		keys:   keys,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{allowedAlgorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(v.leeway))
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}
	v.parser = jwt.NewParser(parserOpts...)

	logger.Info("JWT verifier initialized",
		"algorithm", allowedAlgorithm,
		"issuer", v.issuer,
		"audience", v.audience,
	)
	return v
}

// tokenHeader is the part of the JOSE header needed to select a key.
type tokenHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	Typ string `json:"typ"`
}

// Verify validates a token and returns its claims with the derived identity.
//
// Failure kinds: ErrMalformedToken, ErrVerificationUnavailable (wrapping
// ErrKeyNotFound or ErrKeyFetchFailed), ErrInvalidSignature, ErrExpired and
// ErrMalformedClaims.
func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (*models.VerifiedToken, error) {
	header, signature, err := v.parseHeader(tokenString)
	if err != nil {
		return nil, err
	}

	if header.Alg != allowedAlgorithm {
		return nil, fmt.Errorf("%w: %q", ErrAlgorithmNotAllowed, header.Alg)
	}

	key, err := v.keys.GetKey(ctx, header.Kid)
	if err != nil {
		return nil, unavailable(err)
	}
	if key.Algorithm != "" && key.Algorithm != header.Alg {
		return nil, fmt.Errorf("%w: key %q is for %s", ErrInvalidSignature, key.KeyID, key.Algorithm)
	}
	if key.Use != "" && key.Use != "sig" {
		return nil, fmt.Errorf("%w: key %q is not a signing key", ErrInvalidSignature, key.KeyID)
	}

	// The parser decodes claims before it checks the signature, so the
	// signature is checked here first and a forged payload is never decoded.
	signingString := tokenString[:strings.LastIndex(tokenString, ".")]
	if err := jwt.SigningMethodRS256.Verify(signingString, signature, key.Key); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	claims := &models.TokenClaims{}
	_, err = v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return key.Key, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrMalformedClaims)
	}

	return &models.VerifiedToken{
		Claims:   claims,
		Identity: models.IdentityFromClaims(claims),
	}, nil
}

// parseHeader decodes the JOSE header and the raw signature without
// verifying anything.
func (v *JWTVerifier) parseHeader(tokenString string) (*tokenHeader, []byte, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}

	raw, err := v.parser.DecodeSegment(parts[0])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: decode header: %w", ErrMalformedToken, err)
	}
	var header tokenHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, nil, fmt.Errorf("%w: parse header: %w", ErrMalformedToken, err)
	}
	if header.Kid == "" {
		return nil, nil, fmt.Errorf("%w: missing kid", ErrMalformedToken)
	}

	// A bad signature encoding would otherwise surface from the parser as a
	// malformed payload.
	signature, err := v.parser.DecodeSegment(parts[2])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: decode signature: %w", ErrMalformedToken, err)
	}

	return &header, signature, nil
}

// classifyParseError maps golang-jwt errors onto the verifier's failure kinds.
// The header is known to be well formed at this point, so a malformed token
// means the payload could not be decoded.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenInvalidClaims):
		return fmt.Errorf("%w: %w", ErrMalformedClaims, err)
	default:
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
}
