// Package sqlite stores call records and settings in a single SQLite file.
package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS harmony_call_logs (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		correlation_id TEXT NOT NULL DEFAULT '',
		endpoint       TEXT NOT NULL,
		method         TEXT NOT NULL,
		status_code    INTEGER NOT NULL DEFAULT 0,
		status_message TEXT NOT NULL DEFAULT '',
		header         TEXT NOT NULL DEFAULT '',
		request        TEXT NOT NULL DEFAULT '',
		response       TEXT NOT NULL DEFAULT '',
		uid            TEXT NOT NULL DEFAULT '',
		created        INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS harmony_settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// DB is an open SQLite database with the harmony schema applied
type DB struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at dsn and applies the schema.
// Use "file:name?mode=memory&cache=shared" for an in-memory database.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; also keeps shared-cache memory databases alive
	db.SetMaxOpenConns(1)

	for _, stmt := range append(pragmas, schema...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	logger.Info("SQLite database ready", zap.String("dsn", dsn))
	return &DB{db: db, logger: logger}, nil
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// Logs returns the call log store backed by d
func (d *DB) Logs() *LogStore {
	return &LogStore{db: d.db, logger: d.logger}
}

// Settings returns the settings store backed by d
func (d *DB) Settings() *SettingsStore {
	return &SettingsStore{db: d.db, logger: d.logger}
}
