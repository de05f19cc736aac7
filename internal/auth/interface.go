package auth

import (
	"context"

	"userservice/internal/domain/models"
)

// KeySource supplies verification keys by key identifier.
// KeyCache is the production implementation.
type KeySource interface {
	GetKey(ctx context.Context, kid string) (*SigningKey, error)
}

// TokenVerifier turns a raw bearer token into verified claims and identity.
type TokenVerifier interface {
	// Verify validates the token's signature and expiry. The token must already
	// be stripped of its "Bearer " prefix.
	Verify(ctx context.Context, token string) (*models.VerifiedToken, error)
}

// UserResolver maps a verified subject to its local user, creating it on first contact.
type UserResolver interface {
	GetOrCreateUser(ctx context.Context, subject string) (*models.User, error)
}
