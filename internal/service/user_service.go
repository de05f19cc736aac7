package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"userservice/internal/domain"
	"userservice/internal/domain/models"
	"userservice/internal/domain/repositories"
	"userservice/internal/domain/services"
)

// UserService implements the UserService interface
type UserService struct {
	users    repositories.UserRepository
	identity services.IdentityProvider
	content  services.ContentService
	logger   *slog.Logger
}

// NewUserService creates a new user service
func NewUserService(
	users repositories.UserRepository,
	identity services.IdentityProvider,
	content services.ContentService,
	logger *slog.Logger,
) services.UserService {
	return &UserService{
		users:    users,
		identity: identity,
		content:  content,
		logger:   logger,
	}
}

// GetFullInfo enriches user with its identity provider record
func (s *UserService) GetFullInfo(ctx context.Context, user *models.User) (*models.UserFullInfo, error) {
	idpUser, err := s.identity.GetUser(ctx, user.Sub)
	if err != nil {
		return nil, fmt.Errorf("get identity provider user: %w", err)
	}
	info := user.FullInfo(idpUser)
	return &info, nil
}

// UpdateCurrentUser applies req to user
func (s *UserService) UpdateCurrentUser(ctx context.Context, user *models.User, req *models.UpdateUserRequest) (*models.UserBasicInfo, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	// Identity provider first: if it rejects the change the local row stays untouched
	if req.HasIdentityFields() {
		if err := s.identity.UpdateUser(ctx, user.Sub, req.IdentityUpdate()); err != nil {
			return nil, fmt.Errorf("update identity provider user: %w", err)
		}
	}

	updated := user
	if req.HasLocalFields() {
		next := *user
		req.Apply(&next)

		var err error
		updated, err = s.users.Update(ctx, &next)
		if err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
	}

	s.logger.Info("user updated",
		"sub", user.Sub,
		"has_local_fields", req.HasLocalFields(),
		"has_identity_fields", req.HasIdentityFields(),
	)

	info := updated.BasicInfo()
	return &info, nil
}

// GetSettings retrieves settings for sub
func (s *UserService) GetSettings(ctx context.Context, sub string) (*models.Setting, error) {
	setting, err := s.users.GetSettings(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return setting, nil
}

// UpdateSettings applies req to the stored settings, starting from defaults
// when the user has none yet
func (s *UserService) UpdateSettings(ctx context.Context, sub string, req *models.UpdateSettingRequest) (*models.Setting, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	current, err := s.users.GetSettings(ctx, sub)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("get existing settings: %w", err)
		}
		current = models.NewDefaultSetting(sub, time.Time{})
	}

	req.Apply(current)

	stored, err := s.users.UpsertSettings(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("upsert settings: %w", err)
	}

	s.logger.Info("user settings updated",
		"sub", sub,
		"has_theme", req.Theme != nil,
		"has_lang", req.Lang != nil,
	)
	return stored, nil
}

// GetUserBySub retrieves the public view of a user
func (s *UserService) GetUserBySub(ctx context.Context, sub string) (*models.UserBasicInfo, error) {
	user, err := s.users.GetBySub(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	info := user.BasicInfo()
	return &info, nil
}

// GetUserByUsername resolves username through the identity provider, then
// loads the local user
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (*models.UserBasicInfo, error) {
	sub, err := s.identity.FindUserIDByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("find user by username: %w", err)
	}
	return s.GetUserBySub(ctx, sub)
}

// GetUserByDisplayName retrieves the public view of a user by display name
func (s *UserService) GetUserByDisplayName(ctx context.Context, displayName string) (*models.UserBasicInfo, error) {
	user, err := s.users.GetByDisplayName(ctx, displayName)
	if err != nil {
		return nil, fmt.Errorf("get user by display name: %w", err)
	}
	info := user.BasicInfo()
	return &info, nil
}

// GetUsersBySubs returns one page of the requested users
func (s *UserService) GetUsersBySubs(ctx context.Context, req *models.GetUsersBySubsRequest) (*models.UsersPage, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	offset, limit := req.Page()
	users, total, err := s.users.GetBySubs(ctx, req.Subs, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("get users by subs: %w", err)
	}

	page := &models.UsersPage{
		Users:  make([]models.UserBasicInfo, 0, len(users)),
		Total:  total,
		Offset: offset,
		Limit:  limit,
	}
	for i := range users {
		page.Users = append(page.Users, users[i].BasicInfo())
	}
	return page, nil
}

// ProfilePictureUploadURL asks the content service for a signed upload URL
func (s *UserService) ProfilePictureUploadURL(ctx context.Context, sub string) (string, error) {
	signed, err := s.content.ProfilePictureURL(ctx, sub)
	if err != nil {
		return "", fmt.Errorf("get profile picture url: %w", err)
	}
	return signed, nil
}

// validationError wraps ozzo validation errors so they map to 400
func validationError(err error) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
}
