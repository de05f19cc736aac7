package repositories

import (
	"context"

	"userservice/internal/domain/models"
)

// UserRepository defines data access for users and their settings
type UserRepository interface {
	// GetBySub retrieves a user by subject.
	// Returns domain.ErrNotFound if no user exists.
	GetBySub(ctx context.Context, sub string) (*models.User, error)

	// GetOrCreate returns the user for sub, inserting a user with empty profile
	// fields and default settings when none exists. created reports whether
	// this call inserted the row. Safe under concurrent calls for the same sub.
	GetOrCreate(ctx context.Context, sub string) (user *models.User, created bool, err error)

	// Update persists the profile fields of user and returns the stored row.
	// Returns domain.ErrNotFound if the user does not exist.
	Update(ctx context.Context, user *models.User) (*models.User, error)

	// GetByDisplayName retrieves the first user with the given display name.
	// Returns domain.ErrNotFound if none matches.
	GetByDisplayName(ctx context.Context, displayName string) (*models.User, error)

	// GetBySubs retrieves one page of the users matching subs, ordered by sub,
	// along with the total number of matches.
	GetBySubs(ctx context.Context, subs []string, offset, limit int) ([]models.User, int, error)

	// GetSettings retrieves settings for sub.
	// Returns domain.ErrNotFound if no settings exist.
	GetSettings(ctx context.Context, sub string) (*models.Setting, error)

	// UpsertSettings creates or updates settings and returns the stored row.
	UpsertSettings(ctx context.Context, setting *models.Setting) (*models.Setting, error)
}
