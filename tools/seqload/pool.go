package main

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// validTableName only allows alphanumeric characters and underscores, starting with a letter or underscore.
var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Target is the database the load phase inserts into.
type Target struct {
	db     *sql.DB
	driver string
}

// OpenTarget opens and pings the target database.
func OpenTarget(driver, dsn string, maxConns int) (*Target, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}

	// SQLite serializes writers anyway
	if driver == "sqlite3" {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}
	return &Target{db: db, driver: driver}, nil
}

func (t *Target) DB() *sql.DB {
	return t.db
}

func (t *Target) Close() error {
	return t.db.Close()
}

// CreateTable creates a table keyed by bit-reversed IDs.
func (t *Target) CreateTable(ctx context.Context, table string, dropExisting bool) error {
	if !validTableName.MatchString(table) {
		return fmt.Errorf("invalid table name: %s", table)
	}

	if dropExisting {
		if _, err := t.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGINT PRIMARY KEY,
		worker INT NOT NULL,
		payload VARCHAR(64)
	)`, table)
	if _, err := t.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// GetRowCount returns the number of rows in the table.
func (t *Target) GetRowCount(ctx context.Context, table string) (int64, error) {
	if !validTableName.MatchString(table) {
		return 0, fmt.Errorf("invalid table name: %s", table)
	}

	var count int64
	err := t.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
	return count, err
}

// ReadIDs streams every id in the table.
func (t *Target) ReadIDs(ctx context.Context, table string) ([]int64, error) {
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %s", table)
	}

	rows, err := t.db.QueryContext(ctx, fmt.Sprintf("SELECT id FROM %s", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
