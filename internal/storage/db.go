package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Timestamps are stored as Unix seconds so both engines compare them numerically.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		first_seen BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_items_first_seen ON items (first_seen)`,
	`CREATE TABLE IF NOT EXISTS digest_sections (
		day TEXT NOT NULL,
		category TEXT NOT NULL,
		content TEXT NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (day, category)
	)`,
	`CREATE TABLE IF NOT EXISTS pinned_digests (
		day TEXT PRIMARY KEY,
		message_ref TEXT NOT NULL,
		last_updated BIGINT NOT NULL
	)`,
}

// Open connects to the database, checks the connection and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

func builderFor(db *sqlx.DB) sq.StatementBuilderType {
	if db.DriverName() == DriverSQLite {
		return sq.StatementBuilder.PlaceholderFormat(sq.Question)
	}

	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}
