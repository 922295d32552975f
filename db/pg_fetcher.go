package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/maxpert/bitseq/sequence"
)

// PgQuerier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type PgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const pgBatchQuery = `SELECT nextval($1::regclass) FROM generate_series(1, $2)`

// PgFetcher advances a PostgreSQL sequence count times in one round trip.
// nextval is non-transactional, so no explicit transaction is needed.
type PgFetcher struct {
	q PgQuerier
}

// Ensure compile-time interface compliance.
var _ sequence.Fetcher = (*PgFetcher)(nil)

func NewPgFetcher(q PgQuerier) *PgFetcher {
	return &PgFetcher{q: q}
}

// Fetch implements sequence.Fetcher.
func (f *PgFetcher) Fetch(ctx context.Context, cfg sequence.Config, count int) ([]uint64, error) {
	if !identifierPattern.MatchString(cfg.Name) {
		return nil, fmt.Errorf("invalid sequence identifier %q", cfg.Name)
	}

	// Quoted like PgCreateSequence so mixed-case names resolve.
	rows, err := f.q.Query(ctx, pgBatchQuery, pgx.Identifier{cfg.Name}.Sanitize(), count)
	if err != nil {
		return nil, fmt.Errorf("advance %s: %w", cfg.Name, err)
	}
	raw, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("advance %s: %w", cfg.Name, err)
	}

	values := make([]uint64, len(raw))
	for i, v := range raw {
		if v < 0 {
			return nil, fmt.Errorf("%w: %d", sequence.ErrCounterOutOfRange, v)
		}
		values[i] = uint64(v)
	}
	return values, nil
}

// PgExecer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type PgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgCreateSequence renders the PostgreSQL definition of d. PostgreSQL has no
// skip ranges; the allocator drops excluded counters itself.
func PgCreateSequence(d sequence.SequenceDescriptor) (string, error) {
	if !identifierPattern.MatchString(d.Name) {
		return "", fmt.Errorf("invalid sequence identifier %q", d.Name)
	}
	start := d.StartCounter
	if start < 1 {
		start = 1
	}
	return fmt.Sprintf(`CREATE SEQUENCE IF NOT EXISTS %s START WITH %d`, pgx.Identifier{d.Name}.Sanitize(), start), nil
}

// EnsurePgSequences creates every missing sequence of descs.
func EnsurePgSequences(ctx context.Context, exec PgExecer, descs []sequence.SequenceDescriptor) error {
	for _, d := range descs {
		stmt, err := PgCreateSequence(d)
		if err != nil {
			return err
		}
		if _, err := exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create sequence %s: %w", d.Name, err)
		}
	}
	return nil
}

// PgSession is satisfied by *pgxpool.Pool and *pgx.Conn.
type PgSession interface {
	PgQuerier
	PgExecer
}

// PgCatalog adapts a PostgreSQL database to SequenceCatalog.
type PgCatalog struct {
	db      PgSession
	timeout time.Duration
}

var _ SequenceCatalog = (*PgCatalog)(nil)

// NewPgCatalog bounds each catalog call by timeout, 0 means no bound.
func NewPgCatalog(db PgSession, timeout time.Duration) *PgCatalog {
	return &PgCatalog{db: db, timeout: timeout}
}

func (c *PgCatalog) callContext() (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.timeout)
}

func (c *PgCatalog) Create(d sequence.SequenceDescriptor) error {
	ctx, cancel := c.callContext()
	defer cancel()
	return EnsurePgSequences(ctx, c.db, []sequence.SequenceDescriptor{d})
}

// List reports the sequences of the current schema. PostgreSQL keeps no skip
// range, so only names and kinds are known.
func (c *PgCatalog) List() ([]sequence.SequenceDescriptor, error) {
	ctx, cancel := c.callContext()
	defer cancel()

	rows, err := c.db.Query(ctx, pgListSequences)
	if err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}

	descs := make([]sequence.SequenceDescriptor, len(names))
	for i, name := range names {
		descs[i] = sequence.SequenceDescriptor{Name: name, Kind: sequence.KindBitReversedPositive}
	}
	return descs, nil
}

const pgListSequences = `SELECT sequencename FROM pg_sequences WHERE schemaname = current_schema() ORDER BY sequencename`
