package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode lets readers proceed during writes.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &sqlStore{db: db, retry: true}, nil
}

func initSQLiteSchema(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS agents (
		agent_id TEXT PRIMARY KEY,
		fb_user_token TEXT,
		fb_token_expires INTEGER,
		fb_last_updated INTEGER,
		fb_page_id TEXT,
		fb_page_name TEXT,
		fb_page_token TEXT,
		fb_connected_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS page_posts (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL REFERENCES agents(agent_id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		url TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_page_posts_agent ON page_posts(agent_id, created_at);
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
