package cmd

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/goIdentity/config"
	"github.com/MrEthical07/goIdentity/store/postgres"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Run database migrations",
	Long:      `Applies (up), rolls back one step (down) or reports (status) the Postgres schema. Defaults to up.`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(postgres.MigrateUp), string(postgres.MigrateDown), string(postgres.MigrateStatus)},
	RunE: func(cmd *cobra.Command, args []string) error {
		if settings.DatabaseURL == "" {
			return errors.New(config.Prefix + "DATABASE_URL is required")
		}
		command := postgres.MigrateUp
		if len(args) == 1 {
			command = postgres.MigrateCommand(args[0])
		}

		store, err := postgres.Open(cmd.Context(), settings.DatabaseURL, nil)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer store.Close()

		if err := postgres.Migrate(cmd.Context(), store.DB(), command); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: done\n", command)
		return nil
	},
}
