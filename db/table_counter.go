package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/maxpert/bitseq/sequence"
)

// Counter dialects understood by TableCounter.
const (
	CounterDialectSQLite = "sqlite3"
	CounterDialectMySQL  = "mysql"
)

// TableCounter emulates a sequence with a single-row table holding the next
// value. Each NextValue is one read-modify-write in its own short transaction.
type TableCounter struct {
	db      *sql.DB
	dialect goqu.DialectWrapper
	locking bool
}

// Ensure compile-time interface compliance.
var _ sequence.Counter = (*TableCounter)(nil)

// NewTableCounter creates a counter for dialect (sqlite3 or mysql). SQLite
// databases shared by several processes should be opened with _txlock=immediate.
func NewTableCounter(db *sql.DB, dialect string) (*TableCounter, error) {
	switch dialect {
	case CounterDialectSQLite, CounterDialectMySQL:
	default:
		return nil, fmt.Errorf("unsupported counter dialect %q", dialect)
	}
	return &TableCounter{
		db:      db,
		dialect: goqu.Dialect(dialect),
		// SQLite serializes writers at BEGIN IMMEDIATE; row locks only exist on MySQL.
		locking: dialect == CounterDialectMySQL,
	}, nil
}

// CreateStatements returns the statements that create the counter table for
// d and seed its single row. Both are safe to re-run.
func (c *TableCounter) CreateStatements(d sequence.TableDescriptor) ([]string, error) {
	if !identifierPattern.MatchString(d.Name) {
		return nil, fmt.Errorf("invalid table identifier %q", d.Name)
	}
	column := d.Column
	if column == "" {
		column = sequence.EmulationColumn
	}
	start := d.StartCounter
	if start < 1 {
		start = 1
	}

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (`%s` BIGINT NOT NULL)", d.Name, column)
	seed := fmt.Sprintf("INSERT INTO `%s` (`%s`) SELECT %d FROM (SELECT 1) AS seed WHERE NOT EXISTS (SELECT 1 FROM `%s`)",
		d.Name, column, start, d.Name)
	return []string{create, seed}, nil
}

// EnsureTable creates and seeds the counter table for d.
func (c *TableCounter) EnsureTable(ctx context.Context, d sequence.TableDescriptor) error {
	stmts, err := c.CreateStatements(d)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure counter table %s: %w", d.Name, err)
		}
	}
	return nil
}

// NextValue implements sequence.Counter. It returns the stored value and
// writes back its successor, skipping the exclusion range. A missing row is
// seeded with the starting counter.
func (c *TableCounter) NextValue(ctx context.Context, cfg sequence.Config) (int64, error) {
	if !identifierPattern.MatchString(cfg.Name) {
		return 0, fmt.Errorf("invalid table identifier %q", cfg.Name)
	}
	table := goqu.T(cfg.Name)

	sel := c.dialect.From(table).Select(goqu.C(sequence.EmulationColumn)).Limit(1)
	if c.locking {
		sel = sel.ForUpdate(exp.Wait)
	}
	selectSQL, selectArgs, err := sel.Prepared(true).ToSQL()
	if err != nil {
		return 0, err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin counter transaction: %w", err)
	}
	defer tx.Rollback()

	var current int64
	seeded := false
	err = tx.QueryRowContext(ctx, selectSQL, selectArgs...).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		current = cfg.Start()
		seeded = true
	case err != nil:
		return 0, fmt.Errorf("read counter %s: %w", cfg.Name, err)
	}

	if cfg.Exclusion != nil && cfg.Excludes(current) {
		current = cfg.Exclusion.Max + 1
	}
	next := goqu.Record{sequence.EmulationColumn: current + 1}

	var writeSQL string
	var writeArgs []interface{}
	if seeded {
		writeSQL, writeArgs, err = c.dialect.Insert(table).Rows(next).Prepared(true).ToSQL()
	} else {
		writeSQL, writeArgs, err = c.dialect.Update(table).Set(next).Prepared(true).ToSQL()
	}
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, writeSQL, writeArgs...); err != nil {
		return 0, fmt.Errorf("write counter %s: %w", cfg.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit counter %s: %w", cfg.Name, err)
	}
	return current, nil
}
