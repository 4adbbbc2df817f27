package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/SaaSFox/internal/pkg/database"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/env"
)

var migrationsDir string

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect SQL migrations for DB_DRIVER",
		Long: `Runs the SQL files under <dir>/<driver> against the configured database.

Examples:
  saasfoxctl migrate up
  saasfoxctl migrate down
  saasfoxctl migrate goto 1
  saasfoxctl migrate status`,
	}
	cmd.PersistentFlags().StringVar(&migrationsDir, "dir", "migrations", "migrations root directory")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
			if err := m.Up(); err != nil {
				if errors.Is(err, migrate.ErrNoChange) {
					cmd.Println("No change: database is up to date")
					return nil
				}
				return fmt.Errorf("apply migrations: %w", err)
			}
			cmd.Println("Migrations applied")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
			if err := m.Steps(-1); err != nil {
				return fmt.Errorf("roll back: %w", err)
			}
			cmd.Println("Rolled back one migration")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "goto [version]",
		Short: "Migrate up or down to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrate, args []string) error {
			version, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			if err := m.Migrate(uint(version)); err != nil {
				if errors.Is(err, migrate.ErrNoChange) {
					cmd.Printf("No change: database is already at version %d\n", version)
					return nil
				}
				return fmt.Errorf("migrate to %d: %w", version, err)
			}
			cmd.Printf("Migrated to version %d\n", version)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current migration version",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				cmd.Println("No migrations applied yet")
				return nil
			}
			if err != nil {
				return fmt.Errorf("read version: %w", err)
			}
			suffix := ""
			if dirty {
				suffix = " (dirty)"
			}
			cmd.Printf("Current version: %d%s\n", version, suffix)
			return nil
		}),
	})

	return cmd
}

func migrationSource(dir, driver string) string {
	return fmt.Sprintf("file://%s/%s", dir, driver)
}

func withMigrator(run func(cmd *cobra.Command, m *migrate.Migrate, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		driver := database.Driver()
		cmd.Printf("Connecting to %s database %s@%s\n", driver, env.GetEnv("DB_NAME", ""), env.GetEnv("DB_HOST", "127.0.0.1"))

		m, err := migrate.New(migrationSource(migrationsDir, driver), database.MigrationURL())
		if err != nil {
			return fmt.Errorf("init migrate: %w", err)
		}
		defer func() {
			if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
				cmd.PrintErrf("close migrate: %v, %v\n", sourceErr, dbErr)
			}
		}()
		return run(cmd, m, args)
	}
}
