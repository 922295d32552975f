package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/maxpert/bitseq/ddl"
	"github.com/maxpert/bitseq/sequence"
	"github.com/rs/zerolog/log"
)

// SequenceCatalog holds native sequence definitions. *SequenceStore
// implements it; remote deployments adapt the range RPC to it.
type SequenceCatalog interface {
	Create(d sequence.SequenceDescriptor) error
	List() ([]sequence.SequenceDescriptor, error)
}

var _ SequenceCatalog = (*SequenceStore)(nil)

// SQLiteInspector reports tables from sqlite_master and sequences from the catalog.
type SQLiteInspector struct {
	db    *sql.DB
	store SequenceCatalog
}

var _ ddl.Inspector = (*SQLiteInspector)(nil)

func NewSQLiteInspector(db *sql.DB, store SequenceCatalog) *SQLiteInspector {
	return &SQLiteInspector{db: db, store: store}
}

func (i *SQLiteInspector) ExistingTables(ctx context.Context) (map[string]bool, error) {
	rows, err := i.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables[name] = true
	}
	return tables, rows.Err()
}

func (i *SQLiteInspector) ExistingSequences(ctx context.Context) (map[string]bool, error) {
	defs, err := i.store.List()
	if err != nil {
		return nil, err
	}
	seqs := make(map[string]bool, len(defs))
	for _, d := range defs {
		seqs[d.Name] = true
	}
	return seqs, nil
}

// SQLiteApplier applies a DDL batch: sequences go to the catalog, tables and
// counter seeds run in one SQLite transaction. Sequences are created first
// and are not rolled back if the transaction fails; re-running is safe.
// Counter tables of a counter on another database are created there.
type SQLiteApplier struct {
	db      *sql.DB
	store   SequenceCatalog
	counter *TableCounter
}

var _ ddl.Applier = (*SQLiteApplier)(nil)

func NewSQLiteApplier(db *sql.DB, store SequenceCatalog, counter *TableCounter) *SQLiteApplier {
	return &SQLiteApplier{db: db, store: store, counter: counter}
}

func (a *SQLiteApplier) Apply(ctx context.Context, stmts []ddl.Statement) error {
	var sqls []string
	for _, st := range stmts {
		switch {
		case st.Sequence != nil:
			if err := a.store.Create(*st.Sequence); err != nil {
				return err
			}
		case st.Table != nil && a.counter.db != a.db:
			if err := a.counter.EnsureTable(ctx, *st.Table); err != nil {
				return err
			}
		case st.Table != nil:
			seed, err := a.counter.CreateStatements(*st.Table)
			if err != nil {
				return err
			}
			sqls = append(sqls, seed...)
		case st.Entity != nil:
			sqls = append(sqls, sqliteEntityTable(*st.Entity))
		case st.Constraint != nil:
			// Created inline with its owning table.
			log.Debug().Str("table", st.Owner).Str("constraint", st.Constraint.Name).Msg("Foreign key rendered inline")
		default:
			return fmt.Errorf("statement %s has no object", st.Key)
		}
	}
	if len(sqls) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, s := range sqls {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
	}
	return tx.Commit()
}

func sqliteEntityTable(t ddl.EntityTable) string {
	cols := append([]string(nil), t.Columns...)
	if len(t.PrimaryKey) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(t.PrimaryKey, ", ")))
	}
	// SQLite has no ALTER TABLE ADD CONSTRAINT.
	for _, fk := range t.ForeignKeys {
		c := fmt.Sprintf("CONSTRAINT `%s` FOREIGN KEY (%s) REFERENCES `%s` (%s)", fk.Name, fk.Column, fk.RefTable, fk.RefColumn)
		if fk.OnDeleteCascade {
			c += " ON DELETE CASCADE"
		}
		cols = append(cols, c)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (%s)", t.Name, strings.Join(cols, ", "))
}
