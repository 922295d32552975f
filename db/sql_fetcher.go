package db

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/maxpert/bitseq/sequence"
)

// Dialect selects how the batch query names the sequence.
type Dialect int

const (
	// DialectSpanner renders get_next_sequence_value(sequence name). The
	// server sequence is bit_reversed_positive, so values arrive reversed.
	DialectSpanner Dialect = iota
	// DialectSQLite renders get_next_sequence_value('name') against the
	// function registered by RegisterSequenceDriver. Values arrive raw.
	DialectSQLite
)

func (d Dialect) String() string {
	switch d {
	case DialectSpanner:
		return "spanner"
	case DialectSQLite:
		return "sqlite"
	}
	return fmt.Sprintf("dialect(%d)", int(d))
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type queryKey struct {
	name  string
	count int
}

// SQLFetcher advances a native sequence with one multi-row query executed in
// its own read-write transaction. The transaction commits before any value
// is returned.
type SQLFetcher struct {
	db      *sql.DB
	dialect Dialect
	queries *lru.Cache[queryKey, string]
}

// NewSQLFetcher creates a fetcher. cacheSize bounds the number of memoized
// batch queries.
func NewSQLFetcher(db *sql.DB, dialect Dialect, cacheSize int) (*SQLFetcher, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New[queryKey, string](cacheSize)
	if err != nil {
		return nil, err
	}
	return &SQLFetcher{db: db, dialect: dialect, queries: cache}, nil
}

// PreReversed implements sequence.PreReversed.
func (f *SQLFetcher) PreReversed() bool {
	return f.dialect == DialectSpanner
}

// BatchQuery composes the query that advances name count times:
//
//	WITH t AS (
//		select get_next_sequence_value(sequence name) AS n
//		UNION ALL
//		...
//	)
//	SELECT n FROM t
func BatchQuery(dialect Dialect, name string, count int) (string, error) {
	if !identifierPattern.MatchString(name) {
		return "", fmt.Errorf("invalid sequence identifier %q", name)
	}
	if count < 1 {
		return "", fmt.Errorf("batch size must be >= 1, got %d", count)
	}

	var call string
	switch dialect {
	case DialectSpanner:
		call = fmt.Sprintf("\tselect %s(sequence %s) AS n\n", NextValueFunction, name)
	case DialectSQLite:
		call = fmt.Sprintf("\tselect %s('%s') AS n\n", NextValueFunction, name)
	default:
		return "", fmt.Errorf("unsupported dialect %s", dialect)
	}

	var sb strings.Builder
	sb.WriteString("WITH t AS (\n")
	for i := 0; i < count; i++ {
		if i > 0 {
			sb.WriteString("\tUNION ALL\n")
		}
		sb.WriteString(call)
	}
	sb.WriteString(")\nSELECT n FROM t")
	return sb.String(), nil
}

func (f *SQLFetcher) query(name string, count int) (string, error) {
	key := queryKey{name: name, count: count}
	if q, ok := f.queries.Get(key); ok {
		return q, nil
	}
	q, err := BatchQuery(f.dialect, name, count)
	if err != nil {
		return "", err
	}
	f.queries.Add(key, q)
	return q, nil
}

// Fetch implements sequence.Fetcher.
func (f *SQLFetcher) Fetch(ctx context.Context, cfg sequence.Config, count int) ([]uint64, error) {
	q, err := f.query(cfg.Name, count)
	if err != nil {
		return nil, err
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin sequence transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("advance %s: %w", cfg.Name, err)
	}

	values := make([]uint64, 0, count)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, err
		}
		if v < 0 {
			rows.Close()
			return nil, fmt.Errorf("%w: %d", sequence.ErrCounterOutOfRange, v)
		}
		values = append(values, uint64(v))
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit sequence transaction: %w", err)
	}
	return values, nil
}
