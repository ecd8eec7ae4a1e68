// Package store is the durable audit trail (spec.md C1): devices, state
// snapshots, command lifecycle records, connection events, and audio
// transcripts, backed by a single sqlite file per spec.md §6's
// database_path. It is a follower of the in-memory authoritative state in
// the registry and session manager, never the other way around — write
// failures here are logged and surfaced to the caller, but never roll back
// registry or session state (spec.md §4.1 Failure semantics).
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// DB wraps the sqlite connection pool used by every audit-store query file
// in this package (devices.go, snapshots.go, commands.go, events.go,
// transcripts.go).
type DB struct {
	conn *sql.DB
	log  zerolog.Logger
}

// Open connects to the sqlite database at path, applies pending migrations,
// and returns a ready DB. path is created if it does not exist.
func Open(ctx context.Context, path string, log zerolog.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single file-backed sqlite connection serializes writers internally;
	// keep the pool small to avoid "database is locked" churn under load.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	db := &DB{conn: conn, log: log}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", path).Msg("audit store opened")
	return db, nil
}

func (db *DB) migrate() error {
	sourceDriver, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	dbDriver, err := sqlite3.WithInstance(db.conn, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "chetan", dbDriver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	db.log.Info().Msg("schema migrations applied")
	return nil
}

// HealthCheck verifies the database file is reachable within a short deadline.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.conn.PingContext(ctx)
}

func (db *DB) Close() error {
	db.log.Info().Msg("closing audit store")
	return db.conn.Close()
}
