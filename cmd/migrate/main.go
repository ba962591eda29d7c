package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := newApp(logger).Run(os.Args); err != nil {
		logger.Error("migrate failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newApp(logger *slog.Logger) *cli.App {
	return &cli.App{
		Name:  "migrate",
		Usage: "manage the store database schema",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database",
				Usage:    "postgres connection url",
				EnvVars:  []string{"POSTGRES_URL"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "path",
				Usage:   "migrations source url",
				EnvVars: []string{"MIGRATIONS_PATH"},
				Value:   "file://migrations",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply all pending migrations",
				Action: func(c *cli.Context) error {
					return withMigrate(c, func(m *migrate.Migrate) error {
						err := m.Up()
						if errors.Is(err, migrate.ErrNoChange) {
							logger.Info("no pending migrations")
							return nil
						}
						if err != nil {
							return fmt.Errorf("migration up: %w", err)
						}
						logger.Info("migrations applied successfully")
						return nil
					})
				},
			},
			{
				Name:  "down",
				Usage: "roll back migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Usage: "number of migrations to roll back", Value: 1},
				},
				Action: func(c *cli.Context) error {
					steps := c.Int("steps")
					if steps < 1 {
						return fmt.Errorf("steps must be positive, got %d", steps)
					}
					return withMigrate(c, func(m *migrate.Migrate) error {
						err := m.Steps(-steps)
						if errors.Is(err, migrate.ErrNoChange) {
							logger.Info("no migrations to rollback")
							return nil
						}
						if err != nil {
							return fmt.Errorf("migration down: %w", err)
						}
						logger.Info("migration rolled back successfully", slog.Int("steps", steps))
						return nil
					})
				},
			},
			{
				Name:  "version",
				Usage: "print the current schema version",
				Action: func(c *cli.Context) error {
					return withMigrate(c, func(m *migrate.Migrate) error {
						version, dirty, err := m.Version()
						if errors.Is(err, migrate.ErrNilVersion) {
							logger.Info("no migrations applied yet")
							return nil
						}
						if err != nil {
							return fmt.Errorf("get version: %w", err)
						}
						logger.Info("current migration version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
						return nil
					})
				},
			},
		},
	}
}

func withMigrate(c *cli.Context, fn func(*migrate.Migrate) error) error {
	m, err := migrate.New(c.String("path"), c.String("database"))
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	return fn(m)
}
