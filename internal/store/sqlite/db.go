// Package sqlite implements the stores on a local SQLite file for
// single-node deployments without Postgres.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/modbot/internal/store"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Open opens (creating if needed) the database at path and applies migrations.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	_ = os.Chmod(path, 0600)
	return db, nil
}

// NewStores opens the database at path and returns all stores backed by it.
func NewStores(path string) (*store.Stores, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &store.Stores{
		Groups:   NewGroupStore(db),
		Profiles: NewProfileStore(db),
		Messages: NewMessageStore(db),
		Setup:    NewSetupStore(db),
		Closer:   db,
	}, nil
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: initial schema
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS telegram_groups (
		  id               TEXT PRIMARY KEY,
		  chat_id          INTEGER NOT NULL UNIQUE,
		  group_title      TEXT NOT NULL DEFAULT '',
		  group_type       TEXT NOT NULL DEFAULT 'group',
		  is_active        INTEGER NOT NULL DEFAULT 1,
		  contexts_version INTEGER NOT NULL DEFAULT 0,
		  created_at       INTEGER NOT NULL,
		  updated_at       INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS group_contexts (
		  id           TEXT PRIMARY KEY,
		  group_id     TEXT NOT NULL REFERENCES telegram_groups(id) ON DELETE CASCADE,
		  title        TEXT NOT NULL,
		  content      TEXT NOT NULL,
		  context_type TEXT NOT NULL DEFAULT 'general',
		  is_active    INTEGER NOT NULL DEFAULT 1,
		  priority     INTEGER NOT NULL DEFAULT 0,
		  created_at   INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_group_contexts_group
		ON group_contexts(group_id, is_active, priority DESC);

		CREATE TABLE IF NOT EXISTS user_profiles (
		  id               TEXT PRIMARY KEY,
		  telegram_user_id INTEGER NOT NULL UNIQUE,
		  username         TEXT,
		  first_name       TEXT,
		  last_name        TEXT,
		  created_at       INTEGER NOT NULL,
		  updated_at       INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversation_messages (
		  id                  TEXT PRIMARY KEY,
		  group_id            TEXT NOT NULL REFERENCES telegram_groups(id) ON DELETE CASCADE,
		  telegram_message_id INTEGER NOT NULL,
		  telegram_user_id    INTEGER NOT NULL,
		  username            TEXT,
		  message_text        TEXT NOT NULL,
		  bot_response        TEXT,
		  processed_at        INTEGER,
		  created_at          INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversation_messages_group
		ON conversation_messages(group_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS setup_sessions (
		  id               TEXT PRIMARY KEY,
		  token            TEXT NOT NULL UNIQUE,
		  telegram_user_id INTEGER NOT NULL,
		  group_chat_id    INTEGER NOT NULL,
		  expires_at       INTEGER NOT NULL,
		  is_used          INTEGER NOT NULL DEFAULT 0,
		  created_at       INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_setup_sessions_expires
		ON setup_sessions(expires_at);

		CREATE TRIGGER IF NOT EXISTS group_contexts_bump_insert
		AFTER INSERT ON group_contexts
		BEGIN
		  UPDATE telegram_groups SET contexts_version = contexts_version + 1 WHERE id = NEW.group_id;
		END;

		CREATE TRIGGER IF NOT EXISTS group_contexts_bump_update
		AFTER UPDATE ON group_contexts
		BEGIN
		  UPDATE telegram_groups SET contexts_version = contexts_version + 1
		  WHERE id = NEW.group_id OR id = OLD.group_id;
		END;

		CREATE TRIGGER IF NOT EXISTS group_contexts_bump_delete
		AFTER DELETE ON group_contexts
		BEGIN
		  UPDATE telegram_groups SET contexts_version = contexts_version + 1 WHERE id = OLD.group_id;
		END;
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
