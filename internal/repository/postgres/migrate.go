package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent; %[1]s is the users table, %[2]s the settings table.
const schema = `
CREATE TABLE IF NOT EXISTS %[1]s (
    sub text PRIMARY KEY,
    display_name varchar(255) NOT NULL DEFAULT '',
    profile_picture text NOT NULL DEFAULT '',
    description text NOT NULL DEFAULT '',
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS %[1]s_display_name_idx
ON %[1]s (display_name);

CREATE TABLE IF NOT EXISTS %[2]s (
    sub text PRIMARY KEY REFERENCES %[1]s(sub) ON DELETE CASCADE,
    theme varchar(16) NOT NULL DEFAULT 'light',
    lang varchar(35) NOT NULL DEFAULT 'en',
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW()
);
`

// Migrate creates the service tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool, tables *TableNames, logger *slog.Logger) error {
	tm := NewTransactionManager(pool, logger)
	err := tm.ExecTx(ctx, func(ctx context.Context) error {
		_, err := GetExecutor(ctx, pool).Exec(ctx, fmt.Sprintf(schema, tables.Users, tables.Settings))
		return err
	})
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("schema applied", "users_table", tables.Users, "settings_table", tables.Settings)
	return nil
}
