package database

import (
	"context"
	"fmt"
	"time"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS exports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	filename TEXT NOT NULL,
	location TEXT NOT NULL,
	row_count INTEGER NOT NULL,
	estimated_bytes INTEGER NOT NULL,
	snapshot_table TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
)`

// Export is one recorded export.
type Export struct {
	ID             int64
	Kind           string
	Filename       string
	Location       string
	RowCount       int
	EstimatedBytes uint64
	SnapshotTable  string
	CreatedAt      time.Time
}

// EnsureSchema creates the history table if it does not exist.
func (d *DB) EnsureSchema(ctx context.Context) error {
	if _, err := d.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create exports table: %w", err)
	}
	return nil
}

// RecordExport stores an export and returns its ID.
func (d *DB) RecordExport(ctx context.Context, e Export) (int64, error) {
	res, err := d.ExecContext(ctx,
		`INSERT INTO exports (kind, filename, location, row_count, estimated_bytes, snapshot_table, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Kind, e.Filename, e.Location, e.RowCount, int64(e.EstimatedBytes), e.SnapshotTable,
		e.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to record export: %w", err)
	}
	return res.LastInsertId()
}

// ListExports returns the most recent exports first. A non-positive limit returns all.
func (d *DB) ListExports(ctx context.Context, limit int) ([]Export, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.QueryContext(ctx,
		`SELECT id, kind, filename, location, row_count, estimated_bytes, snapshot_table, created_at
		FROM exports ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}
	defer rows.Close()

	var exports []Export
	for rows.Next() {
		var e Export
		var estimated int64
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Filename, &e.Location, &e.RowCount, &estimated, &e.SnapshotTable, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan export: %w", err)
		}
		e.EstimatedBytes = uint64(estimated)
		if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
		}
		exports = append(exports, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exports: %w", err)
	}
	return exports, nil
}
