// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database, creates the schema, and holds shared row helpers

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS profiles (
			phone_number TEXT PRIMARY KEY,
			name         TEXT NOT NULL DEFAULT '',
			email        TEXT,
			about        TEXT,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id               TEXT PRIMARY KEY,
			sender_phone     TEXT NOT NULL,
			receiver_phone   TEXT NOT NULL,
			message          TEXT NOT NULL,
			is_ai            INTEGER NOT NULL DEFAULT 0,
			is_read          INTEGER NOT NULL DEFAULT 0,
			reply_to_message TEXT,
			created_at       TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_pair_created
			ON messages(sender_phone, receiver_phone, created_at);

		CREATE TABLE IF NOT EXISTS usersmodes (
			phone      TEXT PRIMARY KEY,
			mode       TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (mode IN ('offline', 'semiactive', 'active'))
		);

		CREATE TABLE IF NOT EXISTS todos (
			id            TEXT PRIMARY KEY,
			sender_phone  TEXT NOT NULL,
			title         TEXT NOT NULL,
			status        TEXT NOT NULL DEFAULT 'pending',
			repeat        TEXT,
			reminder_time TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_todos_sender ON todos(sender_phone);

		CREATE TABLE IF NOT EXISTS agents (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL UNIQUE,
			agent_name  TEXT NOT NULL,
			can_send    INTEGER NOT NULL DEFAULT 1,
			can_receive INTEGER NOT NULL DEFAULT 1,
			metadata    TEXT NOT NULL DEFAULT '{}',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS agent_messages (
			id                TEXT PRIMARY KEY,
			sender_agent_id   TEXT NOT NULL,
			receiver_agent_id TEXT NOT NULL,
			content           TEXT NOT NULL,
			status            TEXT NOT NULL,
			created_at        TEXT NOT NULL,
			FOREIGN KEY (sender_agent_id) REFERENCES agents(id),
			FOREIGN KEY (receiver_agent_id) REFERENCES agents(id)
		);

		CREATE INDEX IF NOT EXISTS idx_agent_messages_receiver
			ON agent_messages(receiver_agent_id, created_at);

		CREATE TABLE IF NOT EXISTS run_usage (
			id              TEXT PRIMARY KEY,
			sender_phone    TEXT NOT NULL,
			receiver_phone  TEXT,
			final_state     TEXT NOT NULL,
			model_calls     INTEGER NOT NULL DEFAULT 0,
			tool_dispatches INTEGER NOT NULL DEFAULT 0,
			input_tokens    INTEGER NOT NULL DEFAULT 0,
			output_tokens   INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_run_usage_sender
			ON run_usage(sender_phone, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// DB returns the underlying database handle.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func formatOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseOptionalTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "constraint failed")
}
