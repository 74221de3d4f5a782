package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the sqlite connection used as the engine's document store.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// NewDB opens the database at path and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode and busy timeout keep the trigger path and the sweepers
	// from tripping over each other on single-document writes.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, logger: logger}

	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			is_published BOOLEAN NOT NULL DEFAULT 0,
			next_available_slot DATETIME,
			next_available_check DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS members (
			id TEXT PRIMARY KEY,
			provider_id TEXT NOT NULL,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			is_default BOOLEAN NOT NULL DEFAULT 0,
			FOREIGN KEY (provider_id) REFERENCES providers(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS weekly_availability (
			member_id TEXT NOT NULL,
			day_of_week INTEGER NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
			is_open BOOLEAN NOT NULL DEFAULT 0,
			windows TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (member_id, day_of_week),
			FOREIGN KEY (member_id) REFERENCES members(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS exception_ranges (
			id TEXT PRIMARY KEY,
			member_id TEXT NOT NULL,
			start_date DATETIME NOT NULL,
			end_date DATETIME NOT NULL,
			is_all_day BOOLEAN NOT NULL DEFAULT 1,
			FOREIGN KEY (member_id) REFERENCES members(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id TEXT PRIMARY KEY,
			provider_id TEXT NOT NULL,
			member_id TEXT NOT NULL,
			client_id TEXT,
			status TEXT NOT NULL,
			start_at DATETIME NOT NULL,
			end_at DATETIME NOT NULL,
			client_name TEXT,
			client_email TEXT,
			client_phone TEXT,
			cancelled_by TEXT,
			reminders_sent TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (provider_id) REFERENCES providers(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_member_start
			ON appointments(member_id, start_at)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_status_start
			ON appointments(status, start_at)`,
		`CREATE TABLE IF NOT EXISTS notification_preferences (
			owner_id TEXT PRIMARY KEY,
			push_enabled BOOLEAN NOT NULL DEFAULT 1,
			events TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS push_tokens (
			owner_id TEXT NOT NULL,
			token TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (owner_id, token)
		)`,
		`CREATE TABLE IF NOT EXISTS notification_log (
			id TEXT PRIMARY KEY,
			appointment_id TEXT NOT NULL,
			recipient_kind TEXT NOT NULL,
			recipient_id TEXT,
			event TEXT NOT NULL,
			channel TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT,
			sent_at DATETIME NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}
	return nil
}

// PingContext checks the connection for readiness probes.
func (db *DB) PingContext(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}
