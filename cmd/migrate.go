package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/spf13/cobra"

	"github.com/clientdesk/clients-api/internal/infrastructure/config"
	"github.com/clientdesk/clients-api/internal/infrastructure/db/postgres/migrations"
	"github.com/clientdesk/clients-api/pkg/logger"
)

var migrateDownSteps int

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		migrator, err := newMigrator(cmd)
		if err != nil {
			return err
		}
		defer closeMigrator(migrator)

		if err := migrator.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				log := logger.Get()
				log.Info().Msg("schema already up to date")
				return nil
			}
			return fmt.Errorf("migrate up failed: %w", err)
		}
		logVersion(migrator, "migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations (all of them unless --steps is set)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateDownSteps < 0 {
			return fmt.Errorf("--steps must not be negative")
		}

		migrator, err := newMigrator(cmd)
		if err != nil {
			return err
		}
		defer closeMigrator(migrator)

		if migrateDownSteps > 0 {
			err = migrator.Steps(-migrateDownSteps)
		} else {
			err = migrator.Down()
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate down failed: %w", err)
		}
		logVersion(migrator, "migrations rolled back")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateDownCmd.Flags().IntVar(&migrateDownSteps, "steps", 0, "number of migrations to roll back")
}

// newMigrator reads the embedded migrations and targets DATABASE_URL.
func newMigrator(cmd *cobra.Command) (*migrate.Migrate, error) {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "clients-api",
	})

	src, err := migrations.Source()
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	migrator, err := migrate.NewWithSourceInstance("iofs", src, cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("init migrator failed: %w", err)
	}
	migrator.Log = migrateLogger{verbose: cfg.LogLevel == "debug"}
	return migrator, nil
}

func logVersion(m *migrate.Migrate, msg string) {
	version, dirty, err := m.Version()
	log := logger.Get()
	event := log.Info()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		event = event.Str("version", "none")
	case err != nil:
		event = event.AnErr("version_err", err)
	default:
		event = event.Uint("version", version).Bool("dirty", dirty)
	}
	event.Msg(msg)
}

// migrateLogger forwards golang-migrate output to the application logger.
type migrateLogger struct {
	verbose bool
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	log := logger.Get()
	log.Debug().Msgf(strings.TrimSuffix(format, "\n"), v...)
}

func (l migrateLogger) Verbose() bool {
	return l.verbose
}

func closeMigrator(m *migrate.Migrate) {
	_, _ = m.Close()
}
