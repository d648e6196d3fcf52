package db

import "embed"

// MigrationsFS contains all PostgreSQL migration files embedded at compile time.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS

// SQLiteSchema is applied idempotently when an embedded SQLite database is opened.
//
//go:embed sqlite/schema.sql
var SQLiteSchema string
