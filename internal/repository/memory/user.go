// Package memory provides an in-memory UserRepository for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"userservice/internal/domain"
	"userservice/internal/domain/models"
	"userservice/internal/domain/repositories"
)

// UserRepository stores users and settings in maps guarded by one mutex.
type UserRepository struct {
	mu       sync.Mutex
	users    map[string]*models.User
	settings map[string]*models.Setting
	writes   int
	err      error
}

// NewUserRepository returns an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:    make(map[string]*models.User),
		settings: make(map[string]*models.Setting),
	}
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// FailWith makes every subsequent call return err. Pass nil to recover.
func (r *UserRepository) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Writes returns how many inserts and updates have been applied.
func (r *UserRepository) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// Count returns the number of stored users.
func (r *UserRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// Put stores user as is, replacing any existing row.
func (r *UserRepository) Put(user *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := *user
	r.users[u.Sub] = &u
}

func (r *UserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	u, ok := r.users[sub]
	if !ok {
		return nil, domain.NewNotFound(fmt.Sprintf("user %s not found", sub))
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) GetOrCreate(ctx context.Context, sub string) (*models.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(ctx); err != nil {
		return nil, false, err
	}
	if u, ok := r.users[sub]; ok {
		cp := *u
		return &cp, false, nil
	}

	now := time.Now().UTC()
	u := models.NewUser(sub, now)
	r.users[sub] = u
	if _, ok := r.settings[sub]; !ok {
		r.settings[sub] = models.NewDefaultSetting(sub, now)
	}
	r.writes++

	cp := *u
	return &cp, true, nil
}

func (r *UserRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	existing, ok := r.users[user.Sub]
	if !ok {
		return nil, domain.NewNotFound(fmt.Sprintf("user %s not found", user.Sub))
	}
	existing.DisplayName = user.DisplayName
	existing.ProfilePicture = user.ProfilePicture
	existing.Description = user.Description
	existing.UpdatedAt = time.Now().UTC()
	r.writes++

	cp := *existing
	return &cp, nil
}

func (r *UserRepository) GetByDisplayName(ctx context.Context, displayName string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	var found *models.User
	for _, u := range r.users {
		if u.DisplayName != displayName {
			continue
		}
		if found == nil || u.CreatedAt.Before(found.CreatedAt) ||
			(u.CreatedAt.Equal(found.CreatedAt) && u.Sub < found.Sub) {
			found = u
		}
	}
	if found == nil {
		return nil, domain.NewNotFound(fmt.Sprintf("user with display name %q not found", displayName))
	}
	cp := *found
	return &cp, nil
}

func (r *UserRepository) GetBySubs(ctx context.Context, subs []string, offset, limit int) ([]models.User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(ctx); err != nil {
		return nil, 0, err
	}

	seen := make(map[string]bool, len(subs))
	matched := make([]models.User, 0, len(subs))
	for _, sub := range subs {
		if seen[sub] {
			continue
		}
		seen[sub] = true
		if u, ok := r.users[sub]; ok {
			matched = append(matched, *u)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return strings.Compare(matched[i].Sub, matched[j].Sub) < 0
	})

	total := len(matched)
	if offset >= total {
		return []models.User{}, total, nil
	}
	end := min(offset+limit, total)
	return matched[offset:end], total, nil
}

func (r *UserRepository) GetSettings(ctx context.Context, sub string) (*models.Setting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	s, ok := r.settings[sub]
	if !ok {
		return nil, domain.NewNotFound("settings not found")
	}
	cp := *s
	return &cp, nil
}

func (r *UserRepository) UpsertSettings(ctx context.Context, setting *models.Setting) (*models.Setting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	if _, ok := r.users[setting.Sub]; !ok {
		return nil, domain.NewNotFound(fmt.Sprintf("user %s not found", setting.Sub))
	}

	now := time.Now().UTC()
	s := *setting
	if existing, ok := r.settings[s.Sub]; ok {
		s.CreatedAt = existing.CreatedAt
	} else if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	r.settings[s.Sub] = &s
	r.writes++

	cp := s
	return &cp, nil
}

// check must be called with r.mu held.
func (r *UserRepository) check(ctx context.Context) error {
	if r.err != nil {
		return r.err
	}
	return ctx.Err()
}
