package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"userservice/internal/domain"
	"userservice/internal/domain/models"
	"userservice/internal/domain/repositories"
)

const userColumns = "sub, display_name, profile_picture, description, created_at, updated_at"

const settingColumns = "sub, theme, lang, created_at, updated_at"

// PostgresUserRepository implements the UserRepository interface
type PostgresUserRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	tx     *TransactionManager
	logger *slog.Logger
}

// NewUserRepository creates a new PostgresUserRepository
func NewUserRepository(config *RepositoryConfig) repositories.UserRepository {
	return &PostgresUserRepository{
		pool:   config.Pool,
		tables: config.Tables,
		tx:     NewTransactionManager(config.Pool, config.Logger),
		logger: config.Logger,
	}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.Sub,
		&u.DisplayName,
		&u.ProfilePicture,
		&u.Description,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanSetting(row pgx.Row) (*models.Setting, error) {
	var s models.Setting
	err := row.Scan(&s.Sub, &s.Theme, &s.Lang, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetBySub retrieves a user by subject
func (r *PostgresUserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE sub = $1`, userColumns, r.tables.Users)

	user, err := scanUser(GetExecutor(ctx, r.pool).QueryRow(ctx, query, sub))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, domain.NewNotFound(fmt.Sprintf("user %s not found", sub))
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetOrCreate returns the user for sub, inserting it with default settings on
// first contact.
//
// The insert uses ON CONFLICT DO NOTHING: when two requests race for the same
// new subject, the loser's insert returns no row and it re-reads the winner's
// row inside the same transaction, so exactly one row exists per subject.
func (r *PostgresUserRepository) GetOrCreate(ctx context.Context, sub string) (*models.User, bool, error) {
	user, err := r.GetBySub(ctx, sub)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	created := false
	err = r.tx.ExecTx(ctx, func(ctx context.Context) error {
		executor := GetExecutor(ctx, r.pool)
		now := time.Now().UTC()

		insertUser := fmt.Sprintf(`
			INSERT INTO %s (sub, display_name, profile_picture, description, created_at, updated_at)
			VALUES ($1, '', '', '', $2, $2)
			ON CONFLICT (sub) DO NOTHING
			RETURNING %s
		`, r.tables.Users, userColumns)

		inserted, err := scanUser(executor.QueryRow(ctx, insertUser, sub, now))
		switch {
		case err == nil:
			user = inserted
			created = true
		case IsPgNoRowsError(err):
			// Another request created the row first
			user, err = scanUser(executor.QueryRow(ctx,
				fmt.Sprintf(`SELECT %s FROM %s WHERE sub = $1`, userColumns, r.tables.Users), sub))
			if err != nil {
				return fmt.Errorf("re-read user after conflict: %w", err)
			}
			return nil
		default:
			return fmt.Errorf("insert user: %w", err)
		}

		insertSetting := fmt.Sprintf(`
			INSERT INTO %s (sub, theme, lang, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			ON CONFLICT (sub) DO NOTHING
		`, r.tables.Settings)
		if _, err := executor.Exec(ctx, insertSetting, sub, models.DefaultTheme, models.DefaultLang, now); err != nil {
			return fmt.Errorf("insert default settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		r.logger.Debug("user row inserted", "sub", sub)
	}
	return user, created, nil
}

// Update persists the profile fields of user
func (r *PostgresUserRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET display_name = $2, profile_picture = $3, description = $4, updated_at = $5
		WHERE sub = $1
		RETURNING %s
	`, r.tables.Users, userColumns)

	updated, err := scanUser(GetExecutor(ctx, r.pool).QueryRow(ctx, query,
		user.Sub,
		user.DisplayName,
		user.ProfilePicture,
		user.Description,
		time.Now().UTC(),
	))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, domain.NewNotFound(fmt.Sprintf("user %s not found", user.Sub))
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return updated, nil
}

// GetByDisplayName retrieves the oldest user with the given display name
func (r *PostgresUserRepository) GetByDisplayName(ctx context.Context, displayName string) (*models.User, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE display_name = $1
		ORDER BY created_at, sub
		LIMIT 1
	`, userColumns, r.tables.Users)

	user, err := scanUser(GetExecutor(ctx, r.pool).QueryRow(ctx, query, displayName))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, domain.NewNotFound(fmt.Sprintf("user with display name %q not found", displayName))
		}
		return nil, fmt.Errorf("get user by display name: %w", err)
	}
	return user, nil
}

// GetBySubs retrieves one page of the users matching subs
func (r *PostgresUserRepository) GetBySubs(ctx context.Context, subs []string, offset, limit int) ([]models.User, int, error) {
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER () AS total
		FROM %s
		WHERE sub = ANY($1)
		ORDER BY sub
		OFFSET $2 LIMIT $3
	`, userColumns, r.tables.Users)

	rows, err := GetExecutor(ctx, r.pool).Query(ctx, query, subs, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("get users by subs: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0, limit)
	total := 0
	for rows.Next() {
		var u models.User
		if err := rows.Scan(
			&u.Sub,
			&u.DisplayName,
			&u.ProfilePicture,
			&u.Description,
			&u.CreatedAt,
			&u.UpdatedAt,
			&total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}

	// The window count is absent once the offset passes the last row
	if len(users) == 0 && offset > 0 {
		countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE sub = ANY($1)`, r.tables.Users)
		if err := GetExecutor(ctx, r.pool).QueryRow(ctx, countQuery, subs).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count users by subs: %w", err)
		}
	}

	return users, total, nil
}

// GetSettings retrieves settings for sub
func (r *PostgresUserRepository) GetSettings(ctx context.Context, sub string) (*models.Setting, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE sub = $1`, settingColumns, r.tables.Settings)

	setting, err := scanSetting(GetExecutor(ctx, r.pool).QueryRow(ctx, query, sub))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, domain.NewNotFound("settings not found")
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return setting, nil
}

// UpsertSettings creates or updates settings
func (r *PostgresUserRepository) UpsertSettings(ctx context.Context, setting *models.Setting) (*models.Setting, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (sub, theme, lang, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sub) DO UPDATE SET
			theme = EXCLUDED.theme,
			lang = EXCLUDED.lang,
			updated_at = EXCLUDED.updated_at
		RETURNING %s
	`, r.tables.Settings, settingColumns)

	now := time.Now().UTC()
	createdAt := setting.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	stored, err := scanSetting(GetExecutor(ctx, r.pool).QueryRow(ctx, query,
		setting.Sub,
		setting.Theme,
		setting.Lang,
		createdAt,
		now,
	))
	if err != nil {
		if IsPgForeignKeyError(err) {
			return nil, domain.NewNotFound(fmt.Sprintf("user %s not found", setting.Sub))
		}
		return nil, fmt.Errorf("upsert settings: %w", err)
	}
	return stored, nil
}
