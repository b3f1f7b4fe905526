package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection with thread-safe access.
type DB struct {
	conn *sqlx.DB
	mu   sync.RWMutex
}

// New opens (creating if needed) the database at dbPath and applies the schema.
func New(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sqlx.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS camera_events (
		id TEXT PRIMARY KEY,
		camera_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		total_people INTEGER DEFAULT 0,
		customers_count INTEGER DEFAULT 0,
		employees_count INTEGER DEFAULT 0,
		potential_customers INTEGER DEFAULT 0,
		groups_count INTEGER DEFAULT 0,
		individuals_count INTEGER DEFAULT 0,
		processing_time_ms REAL DEFAULT 0,
		frame_width INTEGER DEFAULT 0,
		frame_height INTEGER DEFAULT 0,
		employee_names TEXT NOT NULL DEFAULT '[]',
		groups_detail TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS employees (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		embedding TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_camera_events_camera_ts ON camera_events(camera_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_employees_status ON employees(status);
	`

	_, err := db.conn.Exec(schema)
	return err
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying connection for use by repositories.
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

func (db *DB) Lock() {
	db.mu.Lock()
}

func (db *DB) Unlock() {
	db.mu.Unlock()
}

func (db *DB) RLock() {
	db.mu.RLock()
}

func (db *DB) RUnlock() {
	db.mu.RUnlock()
}
