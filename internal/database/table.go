package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const (
	// BatchSize is the number of rows to insert in a single transaction.
	BatchSize = 10000
)

// CreateTable creates a snapshot table with one TEXT column per header.
// Drops the table first if it already exists.
func CreateTable(ctx context.Context, db *sql.DB, tableName string, headers []string) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, tableName)); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}

	columns := make([]string, len(headers))
	for i, header := range headers {
		columns[i] = fmt.Sprintf(`"%s" TEXT`, SanitizeColumnName(header))
	}

	createSQL := fmt.Sprintf(`CREATE TABLE "%s" (%s)`, tableName, strings.Join(columns, ", "))
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// InsertBatch inserts a batch of rows into the specified table within a transaction.
// Short rows are padded with empty strings.
func InsertBatch(ctx context.Context, db *sql.DB, tableName string, headers []string, batch [][]string) error {
	if len(batch) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(headers)), ", ")
	quoted := make([]string, len(headers))
	for i, h := range headers {
		quoted[i] = `"` + SanitizeColumnName(h) + `"`
	}
	insertSQL := fmt.Sprintf(`INSERT INTO "%s" (%s) VALUES (%s)`, tableName, strings.Join(quoted, ", "), placeholders)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	values := make([]any, len(headers))
	for _, row := range batch {
		for i := range headers {
			if i < len(row) {
				values[i] = row[i]
			} else {
				values[i] = ""
			}
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("failed to insert row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SnapshotRows stores exported records in their own table, in batches.
func (d *DB) SnapshotRows(ctx context.Context, tableName string, headers []string, records [][]string) error {
	if err := CreateTable(ctx, d.DB, tableName, headers); err != nil {
		return err
	}
	for start := 0; start < len(records); start += BatchSize {
		end := min(start+BatchSize, len(records))
		if err := InsertBatch(ctx, d.DB, tableName, headers, records[start:end]); err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}
	}
	return nil
}

// GetTableColumns returns the column names for a table.
func GetTableColumns(ctx context.Context, db *sql.DB, tableName string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info("%s")`, tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to get table info: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		columns = append(columns, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading columns: %w", err)
	}
	return columns, nil
}
