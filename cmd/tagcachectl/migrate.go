package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/tagcache/internal/config"
)

// newMigrateCommand runs the selected backend's schema migrations. sqlite
// and postgres run pressly/goose migrations as part of construction
// (internal/backend/sqlitestore, internal/backend/pgstore); memory and
// redis have no schema, so this is a no-op that still validates config.
func newMigrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the configured backend's schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			switch cfg.Cache.Backend {
			case config.BackendMemory, config.BackendRedis:
				fmt.Fprintf(cmd.OutOrStdout(), "backend %q has no schema, nothing to migrate\n", cfg.Cache.Backend)
				return nil
			}

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer a.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied for backend %q\n", cfg.Cache.Backend)
			return nil
		},
	}
}
