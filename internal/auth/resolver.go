package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"userservice/internal/domain/models"
	"userservice/internal/domain/repositories"
	"userservice/internal/metrics"
)

// IdentityResolver maps verified subjects to local users, provisioning a
// user row the first time a subject is seen.
type IdentityResolver struct {
	users   repositories.UserRepository
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewIdentityResolver creates a resolver over users. timeout bounds each
// storage call on top of the request context; zero disables it.
func NewIdentityResolver(users repositories.UserRepository, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *IdentityResolver {
	return &IdentityResolver{
		users:   users,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// GetOrCreateUser returns the user for subject. An existing user is returned
// as stored; nothing is refreshed from the token. Any storage failure is
// returned as ErrStorageUnavailable and is not retried.
func (r *IdentityResolver) GetOrCreateUser(ctx context.Context, subject string) (*models.User, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	user, created, err := r.users.GetOrCreate(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("%w: get or create user: %w", ErrStorageUnavailable, err)
	}

	if created {
		r.metrics.UserProvisioned()
		r.logger.Info("user provisioned", "subject", subject)
	}
	return user, nil
}
