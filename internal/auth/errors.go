package auth

import (
	"errors"
	"fmt"
)

// Verification failure kinds. Callers classify with errors.Is; every kind
// collapses to 401 at the HTTP boundary.
var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
	ErrMalformedClaims  = errors.New("malformed token claims")

	// ErrAlgorithmNotAllowed is reported as an invalid signature.
	ErrAlgorithmNotAllowed = fmt.Errorf("%w: algorithm not allowed", ErrInvalidSignature)

	// ErrVerificationUnavailable wraps key cache failures seen by the verifier.
	ErrVerificationUnavailable = errors.New("token verification unavailable")
)

// Key cache failure kinds.
var (
	ErrKeyNotFound    = errors.New("signing key not found")
	ErrKeyFetchFailed = errors.New("signing key fetch failed")
)

// ErrStorageUnavailable is returned by the identity resolver for any storage failure.
var ErrStorageUnavailable = errors.New("user storage unavailable")

// unavailable wraps a key cache error so both ErrVerificationUnavailable and
// the underlying kind match with errors.Is.
func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrVerificationUnavailable, err)
}
