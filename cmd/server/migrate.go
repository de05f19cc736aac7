package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"userservice/internal/config"
	"userservice/internal/repository/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the users and settings tables if they do not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if err := cfg.ValidateDatabase(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, closer, err := config.NewLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to set up logging: %w", err)
			}
			defer closer.Close()
			slog.SetDefault(logger)

			ctx := cmd.Context()
			pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{MaxConns: 2})
			if err != nil {
				return fmt.Errorf("failed to create connection pool: %w", err)
			}
			defer pool.Close()

			return postgres.Migrate(ctx, pool, postgres.NewTableNames(cfg.TablePrefix), logger)
		},
	}
}
