package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/memohai/newsdesk/internal/config"
)

// SQL is a database/sql handle shared by the SQL-backed stores. The same
// queries run on SQLite and PostgreSQL; only the placeholder style differs.
type SQL struct {
	DB     *sql.DB
	Driver string

	pool *pgxpool.Pool
}

// Builder returns a squirrel builder with the driver's placeholder format.
func (s *SQL) Builder() sq.StatementBuilderType {
	if s.Driver == config.DriverPostgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// Close releases the handle and, for PostgreSQL, the underlying pool.
func (s *SQL) Close() error {
	err := s.DB.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// OpenSQLite opens (or creates) the SQLite database at path and applies the
// embedded schema. ":memory:" is valid. A single connection is kept open so
// writers never race for the file lock and an in-memory database survives
// between queries.
func OpenSQLite(ctx context.Context, path, schema string) (*SQL, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	if err := applySchema(ctx, conn, schema); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &SQL{DB: conn, Driver: config.DriverSQLite}, nil
}

// FromPool exposes a pgx pool through database/sql.
func FromPool(pool *pgxpool.Pool) *SQL {
	return &SQL{DB: stdlib.OpenDBFromPool(pool), Driver: config.DriverPostgres, pool: pool}
}

// OpenConfigured opens the database selected by cfg.Database. PostgreSQL is
// migrated to the latest version when auto_migrate is set.
func OpenConfigured(ctx context.Context, logger *slog.Logger, cfg config.Config, schema string, migrations fs.FS) (*SQL, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		if cfg.Database.AutoMigrate && migrations != nil {
			if err := RunMigrate(logger, cfg.Postgres, migrations, "up", nil); err != nil {
				return nil, err
			}
		}
		pool, err := Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		return FromPool(pool), nil
	default:
		return OpenSQLite(ctx, cfg.Database.SQLitePath, schema)
	}
}

func applySchema(ctx context.Context, conn *sql.DB, schema string) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
