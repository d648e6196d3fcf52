package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/memohai/newsdesk/internal/config"
)

// MigrateCommands lists the verbs RunMigrate accepts.
var MigrateCommands = []string{"up", "down", "steps", "version", "force"}

type migrateOp func(m *migrate.Migrate, log *slog.Logger) error

// RunMigrate applies or rolls back the PostgreSQL schema.
// migrationsFS holds the .sql files at its root.
// "steps N" moves N migrations up (or down when negative); "force N" marks
// version N clean after a failed migration.
func RunMigrate(logger *slog.Logger, cfg config.PostgresConfig, migrationsFS fs.FS, command string, args []string) error {
	if logger == nil {
		logger = slog.Default()
	}
	op, err := parseMigrateCommand(command, args)
	if err != nil {
		return err
	}
	if migrationsFS == nil {
		return errors.New("migration source: no migrations")
	}

	source, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, DSN(cfg))
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer m.Close()

	log := logger.With(slog.String("component", "migrate"))
	m.Log = &migrateLogger{logger: log}
	return op(m, log)
}

func parseMigrateCommand(command string, args []string) (migrateOp, error) {
	switch command {
	case "up":
		return func(m *migrate.Migrate, log *slog.Logger) error {
			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate up: %w", err)
			}
			return logVersion(m, log, "schema up to date")
		}, nil
	case "down":
		return func(m *migrate.Migrate, log *slog.Logger) error {
			if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate down: %w", err)
			}
			log.Info("all migrations rolled back")
			return nil
		}, nil
	case "steps":
		n, err := intArg(command, args)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, errors.New("steps must not be zero")
		}
		return func(m *migrate.Migrate, log *slog.Logger) error {
			if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate steps %d: %w", n, err)
			}
			return logVersion(m, log, "schema moved")
		}, nil
	case "version":
		return func(m *migrate.Migrate, log *slog.Logger) error {
			return logVersion(m, log, "current version")
		}, nil
	case "force":
		n, err := intArg(command, args)
		if err != nil {
			return nil, err
		}
		return func(m *migrate.Migrate, log *slog.Logger) error {
			if err := m.Force(n); err != nil {
				return fmt.Errorf("migrate force: %w", err)
			}
			log.Info("forced version", slog.Int("version", n))
			return nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown migrate command: %s (use: %s)", command, strings.Join(MigrateCommands, ", "))
	}
}

func intArg(command string, args []string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%s requires a version number argument", command)
	}
	n, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return 0, fmt.Errorf("invalid %s argument %q: %w", command, args[0], err)
	}
	return n, nil
}

func logVersion(m *migrate.Migrate, log *slog.Logger, msg string) error {
	ver, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Info(msg, slog.String("version", "none"))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate version: %w", err)
	}
	log.Info(msg, slog.Uint64("version", uint64(ver)), slog.Bool("dirty", dirty))
	return nil
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *migrateLogger) Verbose() bool {
	return l.logger.Enabled(context.Background(), slog.LevelDebug)
}
