package services

import (
	"context"

	"userservice/internal/domain/models"
)

// UserService defines the business logic for user profile and settings operations
type UserService interface {
	// GetFullInfo enriches the user with username, email and names from the identity provider
	GetFullInfo(ctx context.Context, user *models.User) (*models.UserFullInfo, error)

	// UpdateCurrentUser applies a partial update. Identity provider fields are
	// written first; if that fails, nothing is written locally
	UpdateCurrentUser(ctx context.Context, user *models.User, req *models.UpdateUserRequest) (*models.UserBasicInfo, error)

	// GetSettings returns the caller's settings (domain.ErrNotFound if none)
	GetSettings(ctx context.Context, sub string) (*models.Setting, error)

	// UpdateSettings applies a partial settings update, creating the row if needed
	UpdateSettings(ctx context.Context, sub string, req *models.UpdateSettingRequest) (*models.Setting, error)

	GetUserBySub(ctx context.Context, sub string) (*models.UserBasicInfo, error)
	GetUserByUsername(ctx context.Context, username string) (*models.UserBasicInfo, error)
	GetUserByDisplayName(ctx context.Context, displayName string) (*models.UserBasicInfo, error)

	// GetUsersBySubs returns one page of the requested users
	GetUsersBySubs(ctx context.Context, req *models.GetUsersBySubsRequest) (*models.UsersPage, error)

	// ProfilePictureUploadURL returns a signed URL the caller can upload a profile picture to
	ProfilePictureUploadURL(ctx context.Context, sub string) (string, error)
}
