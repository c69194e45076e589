package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	pgstore "github.com/JakeFAU/url-indexer/internal/storage/postgres"
)

// migrator is swapped in tests.
type migrator struct {
	up      func(dsn string) error
	down    func(dsn string) error
	version func(dsn string) (uint, bool, error)
}

var migrations = migrator{
	up:      pgstore.MigrateUp,
	down:    pgstore.MigrateDown,
	version: pgstore.MigrationVersion,
}

var errNoDSN = errors.New("database.dsn (or DATABASE_URL) is required for migrations")

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Applies database migrations and exits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigration(cmd, "up")
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rolls back every migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigration(cmd, "down")
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Prints the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigration(cmd, "version")
		},
	})
	return cmd
}

func runMigration(cmd *cobra.Command, direction string) error {
	rt, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	dsn := rt.cfg.Database.DSN
	if dsn == "" {
		return errNoDSN
	}
	switch direction {
	case "up":
		if err := migrations.up(dsn); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		rt.logger.Info("migrations applied")
	case "down":
		if err := migrations.down(dsn); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		rt.logger.Info("migrations rolled back")
	case "version":
		v, dirty, err := migrations.version(dsn)
		if err != nil {
			return fmt.Errorf("migration version: %w", err)
		}
		rt.logger.Info("schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
		fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", v, dirty)
	}
	return nil
}
