package services

import (
	"context"

	"userservice/internal/domain/models"
)

// IdentityProvider is the identity provider's admin API as seen by this service.
// Errors wrap domain.ErrIdentityProvider, or domain.ErrNotFound for unknown users.
type IdentityProvider interface {
	GetUser(ctx context.Context, id string) (*models.IdentityUser, error)
	UpdateUser(ctx context.Context, id string, update *models.IdentityUserUpdate) error
	FindUserIDByUsername(ctx context.Context, username string) (string, error)
}

// ContentService issues signed upload URLs for user content.
type ContentService interface {
	ProfilePictureURL(ctx context.Context, sub string) (string, error)
}
