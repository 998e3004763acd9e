package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/modbot/internal/config"
	"github.com/nextlevelbuilder/modbot/internal/store/pg"
	"github.com/nextlevelbuilder/modbot/internal/upgrade"
)

var migrationsDir string

// resolveMigrationsDir picks --migrations-dir, then $MODBOT_MIGRATIONS_DIR,
// then ./migrations, then migrations/ next to the binary.
func resolveMigrationsDir() string {
	if migrationsDir != "" {
		return migrationsDir
	}
	if v := os.Getenv("MODBOT_MIGRATIONS_DIR"); v != "" {
		return v
	}
	if fi, err := os.Stat("migrations"); err == nil && fi.IsDir() {
		return "migrations"
	}
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

// newMigrator is shared by `migrate` and the serve-time auto-upgrade.
func newMigrator(dsn string) (*migrate.Migrate, error) {
	m, err := migrate.New("file://"+resolveMigrationsDir(), dsn)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// postgresDSN returns the configured DSN. SQLite databases migrate
// themselves on open, so every migrate subcommand needs Postgres.
func postgresDSN() (string, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.PostgresDSN == "" {
		return "", errors.New("MODBOT_POSTGRES_DSN is not set (sqlite databases migrate on open)")
	}
	return cfg.Database.PostgresDSN, nil
}

func withMigrator(fn func(m *migrate.Migrate) error) error {
	dsn, err := postgresDSN()
	if err != nil {
		return err
	}
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}
	cmd.PersistentFlags().StringVar(&migrationsDir, "migrations-dir", "", "path to migrations directory (default: ./migrations)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate) error {
				if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("migrate up: %w", err)
				}
				v, dirty, _ := m.Version()
				slog.Info("migration complete", "version", v, "dirty", dirty)
				return nil
			})
		},
	})
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the schema version and whether this binary can serve it",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := postgresDSN()
			if err != nil {
				return err
			}
			return printSchemaStatus(cmd.Context(), dsn)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Mark a version as applied after fixing a failed migration by hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			return withMigrator(func(m *migrate.Migrate) error {
				if err := m.Force(version); err != nil {
					return fmt.Errorf("force version: %w", err)
				}
				slog.Info("forced version", "version", version)
				return nil
			})
		},
	})
	return cmd
}

func migrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (default: 1 step)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				steps = 1
			}
			return withMigrator(func(m *migrate.Migrate) error {
				if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("migrate down: %w", err)
				}
				v, dirty, _ := m.Version()
				slog.Info("rollback complete", "version", v, "dirty", dirty)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of steps to roll back")
	return cmd
}

func printSchemaStatus(ctx context.Context, dsn string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := pg.OpenDB(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := upgrade.CheckSchema(ctx, db)
	if err != nil {
		return err
	}
	fmt.Printf("version: %d, required: %d, dirty: %v\n", s.CurrentVersion, s.RequiredVersion, s.Dirty)
	if !s.Compatible {
		fmt.Print(upgrade.FormatError(s))
	}
	return nil
}
