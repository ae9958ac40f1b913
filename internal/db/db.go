// Package db is the SQLite store behind the deep-scan workspace: browser
// sessions, their uploaded file list, scan runs and the findings of each run.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
)

// MemoryPath opens a private in-memory database that lives as long as the
// process.
const MemoryPath = ":memory:"

// DB wraps the SQL connection pool
type DB struct {
	*sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*DB, error) {
	if path == "" {
		path = MemoryPath
	}

	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	sqlDB, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite has a single writer, and an in-memory database
	// is dropped together with the connection that created it.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if path != MemoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	db := &DB{sqlDB}
	if err := db.Migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}
