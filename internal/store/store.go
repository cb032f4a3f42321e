// Package store persists movements, alert history, escalation settings and
// push subscriptions over database/sql.
//
// One SQL codebase, two backends: a postgres:// URL selects the pgx driver,
// anything else is an SQLite path. All statements use $1 placeholders (valid
// in both dialects) and INSERT ... RETURNING id; only the DDL differs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps the SQL database shared by the monitor and the serving layer.
type Store struct {
	db      *sql.DB
	dialect string // "postgres" or "sqlite"
}

// Open connects to the database selected by url and bootstraps the schema.
func Open(url string) (*Store, error) {
	driver, dialect := "sqlite", "sqlite"
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		driver, dialect = "pgx", "postgres"
	}

	db, err := sql.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dialect == "sqlite" {
		// Single writer; SQLite serializes writes anyway and this keeps
		// :memory: databases on one connection.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set journal mode: %w", err)
		}
		if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// serial returns the dialect-specific auto-increment primary key column.
func (s *Store) serial() string {
	if s.dialect == "postgres" {
		return "BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vehicles (
			id ` + s.serial() + `,
			plate TEXT NOT NULL UNIQUE,
			owner TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS operations (
			id ` + s.serial() + `,
			kind TEXT NOT NULL DEFAULT 'export'
		)`,
		`CREATE TABLE IF NOT EXISTS movements (
			id ` + s.serial() + `,
			operation_id BIGINT NOT NULL,
			vehicle_id BIGINT NOT NULL,
			container_no TEXT NOT NULL,
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP,
			state TEXT NOT NULL DEFAULT 'open',
			last_notified_at TIMESTAMP,
			anomaly_reported BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_movements_state ON movements (state)`,
		`CREATE INDEX IF NOT EXISTS idx_movements_end_time ON movements (end_time)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id ` + s.serial() + `,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			operation_id BIGINT,
			movement_id BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS thresholds (
			id ` + s.serial() + `,
			import_minutes INTEGER NOT NULL,
			export_minutes INTEGER NOT NULL,
			renotify_minutes INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			updated_by TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id ` + s.serial() + `,
			endpoint TEXT NOT NULL UNIQUE,
			p256dh TEXT NOT NULL,
			auth TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			last_seen TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
