// Package postgres persists donations, needs, and the geocode cache.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenDB connects through the pgx database/sql driver and verifies the
// connection.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// schemaLockID serializes schema bootstrap across replicas.
const schemaLockID int64 = 2026101901

const schemaDDL = `
CREATE TABLE IF NOT EXISTS donations (
	id TEXT PRIMARY KEY,
	donor_ref TEXT NOT NULL DEFAULT '',
	item TEXT NOT NULL,
	category TEXT NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity >= 1),
	location TEXT NOT NULL DEFAULT '',
	lat DOUBLE PRECISION,
	lng DOUBLE PRECISION,
	formatted_address TEXT,
	geocode_quality TEXT,
	geocoded_at TIMESTAMPTZ,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS needs (
	id TEXT PRIMARY KEY,
	organization_ref TEXT NOT NULL DEFAULT '',
	item TEXT NOT NULL,
	category TEXT NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity >= 1),
	urgency TEXT NOT NULL DEFAULT 'medium',
	location TEXT NOT NULL DEFAULT '',
	lat DOUBLE PRECISION,
	lng DOUBLE PRECISION,
	formatted_address TEXT,
	geocode_quality TEXT,
	geocoded_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'open',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS geocoding_cache (
	address TEXT PRIMARY KEY,
	lat DOUBLE PRECISION NOT NULL,
	lon DOUBLE PRECISION NOT NULL,
	formatted_address TEXT NOT NULL DEFAULT '',
	quality TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_needs_open_lat_lng ON needs(lat, lng) WHERE status = 'open';
CREATE INDEX IF NOT EXISTS idx_donations_geocoded_at ON donations(geocoded_at);
CREATE INDEX IF NOT EXISTS idx_needs_geocoded_at ON needs(geocoded_at);
`

// EnsureSchema creates tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
