// Package storage provides the local durable store backing ingestion.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DefaultProcessedCapacity bounds the processed-fingerprint set. Oldest
// entries are evicted once the set grows past this.
const DefaultProcessedCapacity = 500

// SQLiteStorage implements the service.Storage interface using SQLite.
type SQLiteStorage struct {
	db                *sql.DB
	dbPath            string
	processedCapacity int
}

// Option customizes a SQLiteStorage.
type Option func(*SQLiteStorage)

// WithProcessedCapacity overrides the processed-set eviction bound.
func WithProcessedCapacity(n int) Option {
	return func(s *SQLiteStorage) {
		if n > 0 {
			s.processedCapacity = n
		}
	}
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStorage{
		db:                db,
		dbPath:            dbPath,
		processedCapacity: DefaultProcessedCapacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
