// Package database records export history in SQLite.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the history database connection.
type DB struct {
	*sql.DB
	Path          string
	IsTemp        bool
	ShouldCleanup bool
}

// Open opens or creates the history database and makes sure its schema exists.
// If dbPath is empty, a temporary database is created and removed on Close.
func Open(ctx context.Context, dbPath string) (*DB, error) {
	d := &DB{Path: dbPath}

	if dbPath == "" {
		tmpFile, err := os.CreateTemp("", "jiraexport-*.db")
		if err != nil {
			return nil, fmt.Errorf("failed to create temporary database: %w", err)
		}
		tmpFile.Close()
		d.Path = tmpFile.Name()
		d.IsTemp = true
		d.ShouldCleanup = true
	} else if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", d.Path+"?_busy_timeout=5000")
	if err != nil {
		d.Cleanup()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The CLI is the only writer.
	db.SetMaxOpenConns(1)
	d.DB = db

	if err := d.EnsureSchema(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Cleanup removes the temporary database file if applicable.
func (d *DB) Cleanup() error {
	if d.ShouldCleanup {
		if err := os.Remove(d.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove temporary database %s: %w", d.Path, err)
		}
	}
	return nil
}

// Close closes the database connection and cleans up if necessary.
func (d *DB) Close() error {
	if err := d.DB.Close(); err != nil {
		return err
	}
	return d.Cleanup()
}
