package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/duetlabs/duet/internal/core"
)

// SQLiteStore implements StateStore and BlobStore on a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &SQLiteStore{
		db:   db,
		path: dbPath,
	}, nil
}

// Initialize creates the database schema.
func (s *SQLiteStore) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		snapshot TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		created_at DATETIME NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadState returns the persisted snapshot, or (nil, nil) when none exists.
func (s *SQLiteStore) LoadState() ([]byte, error) {
	var snapshot []byte
	err := s.db.QueryRow("SELECT snapshot FROM state WHERE id = 1").Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return snapshot, nil
}

// SaveState overwrites the single state row.
func (s *SQLiteStore) SaveState(data []byte) error {
	query := `
	INSERT INTO state (id, snapshot, updated_at) VALUES (1, ?, ?)
	ON CONFLICT(id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at
	`
	if _, err := s.db.Exec(query, data, time.Now()); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// Put stores media bytes under a fresh key.
func (s *SQLiteStore) Put(data []byte) (string, error) {
	key := core.NewBlobKey()
	_, err := s.db.Exec("INSERT INTO blobs (key, data, created_at) VALUES (?, ?, ?)", key, data, time.Now())
	if err != nil {
		return key, fmt.Errorf("failed to store blob: %w", err)
	}
	return key, nil
}

// Get returns the bytes for a key, or (nil, nil) when absent.
func (s *SQLiteStore) Get(key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM blobs WHERE key = ?", key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return data, nil
}

// Delete removes a blob. Absent keys are not an error.
func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM blobs WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// DefaultDBPath returns the default database path.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "duet.db"
	}
	return filepath.Join(home, ".duet", "duet.db")
}
