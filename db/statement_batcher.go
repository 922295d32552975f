package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jizhuozhi/go-future"
	"github.com/maxpert/bitseq/telemetry"
	"github.com/rs/zerolog/log"
)

// ErrBatchClosed is returned when using a batch after Commit or Rollback.
var ErrBatchClosed = errors.New("statement batch already closed")

// Statement is one queued write.
type Statement struct {
	SQL  string
	Args []any
}

// TxScope is an open transaction able to execute a group of statements as
// one request.
type TxScope interface {
	ExecBatch(ctx context.Context, stmts []Statement) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxOpener starts transaction scopes.
type TxOpener interface {
	BeginScope(ctx context.Context) (TxScope, error)
}

// CommitResult summarizes a committed batch.
type CommitResult struct {
	Statements int
	Flushes    int
}

// StatementBatcher groups writes of one transaction so they reach the
// database in MaxBatchSize chunks instead of one round trip per statement.
type StatementBatcher struct {
	opener       TxOpener
	maxBatchSize int
}

func NewStatementBatcher(opener TxOpener, maxBatchSize int) *StatementBatcher {
	if maxBatchSize < 1 {
		maxBatchSize = 1
	}
	return &StatementBatcher{opener: opener, maxBatchSize: maxBatchSize}
}

// Begin opens a transaction scope and returns its batch.
func (b *StatementBatcher) Begin(ctx context.Context) (*Batch, error) {
	tx, err := b.opener.BeginScope(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	return &Batch{
		tx:           tx,
		maxBatchSize: b.maxBatchSize,
		pending:      make([]Statement, 0, b.maxBatchSize),
		promise:      future.NewPromise[CommitResult](),
	}, nil
}

// Batch queues statements of one transaction. Not safe for use after Commit
// or Rollback.
type Batch struct {
	mu           sync.Mutex
	tx           TxScope
	maxBatchSize int
	pending      []Statement
	executed     int
	flushes      int
	closed       bool
	promise      *future.Promise[CommitResult]
}

// Add queues stmt and flushes once MaxBatchSize statements are pending.
// A failed flush rolls the whole transaction back.
func (b *Batch) Add(ctx context.Context, stmt Statement) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBatchClosed
	}
	b.pending = append(b.pending, stmt)
	if len(b.pending) < b.maxBatchSize {
		return nil
	}
	if err := b.flushLocked(ctx); err != nil {
		b.abortLocked(ctx, err)
		return err
	}
	return nil
}

func (b *Batch) flushLocked(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	stmts := b.pending
	b.pending = make([]Statement, 0, b.maxBatchSize)

	telemetry.BatchFlushSize.Observe(float64(len(stmts)))
	if err := b.tx.ExecBatch(ctx, stmts); err != nil {
		telemetry.BatchFlushesTotal.With("failed").Inc()
		return fmt.Errorf("flush %d statements: %w", len(stmts), err)
	}
	telemetry.BatchFlushesTotal.With("success").Inc()
	b.executed += len(stmts)
	b.flushes++
	return nil
}

func (b *Batch) abortLocked(ctx context.Context, cause error) {
	b.closed = true
	b.pending = nil
	if err := b.tx.Rollback(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to rollback statement batch")
	}
	b.promise.Set(CommitResult{}, cause)
}

// Flushes returns the number of successful flushes so far.
func (b *Batch) Flushes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushes
}

// Pending returns the number of queued, unflushed statements.
func (b *Batch) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Result resolves once the batch commits, fails or is rolled back.
func (b *Batch) Result() *future.Future[CommitResult] {
	return b.promise.Future()
}

// Commit flushes the remaining statements and commits. The commit is only
// acknowledged after the final flush succeeded.
func (b *Batch) Commit(ctx context.Context) (CommitResult, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return CommitResult{}, ErrBatchClosed
	}

	if err := b.flushLocked(ctx); err != nil {
		b.abortLocked(ctx, err)
		b.mu.Unlock()
		log.Error().Err(err).Msg("Statement batch final flush failed")
		return b.promise.Future().Get()
	}

	b.closed = true
	if err := b.tx.Commit(ctx); err != nil {
		b.promise.Set(CommitResult{}, fmt.Errorf("commit batch: %w", err))
	} else {
		b.promise.Set(CommitResult{Statements: b.executed, Flushes: b.flushes}, nil)
		if b.flushes > 1 {
			log.Debug().Int("batch_size", b.executed).Int("flushes", b.flushes).Msg("Statement batch committed")
		}
	}
	b.mu.Unlock()
	return b.promise.Future().Get()
}

// Rollback discards queued and flushed statements.
func (b *Batch) Rollback(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBatchClosed
	}
	b.abortLocked(ctx, context.Canceled)
	return nil
}

// SQLOpener opens database/sql transactions. ExecBatch runs the statements
// back to back on the transaction's connection.
type SQLOpener struct {
	DB *sql.DB
}

func (o SQLOpener) BeginScope(ctx context.Context) (TxScope, error) {
	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return sqlScope{tx: tx}, nil
}

type sqlScope struct {
	tx *sql.Tx
}

func (s sqlScope) ExecBatch(ctx context.Context, stmts []Statement) error {
	for i, stmt := range stmts {
		if _, err := s.tx.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}
	return nil
}

func (s sqlScope) Commit(context.Context) error   { return s.tx.Commit() }
func (s sqlScope) Rollback(context.Context) error { return s.tx.Rollback() }

// PgBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type PgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgOpener opens pgx transactions. ExecBatch sends every statement of a
// flush in a single pgx.Batch round trip.
type PgOpener struct {
	DB PgBeginner
}

func (o PgOpener) BeginScope(ctx context.Context) (TxScope, error) {
	tx, err := o.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return pgScope{tx: tx}, nil
}

type pgScope struct {
	tx pgx.Tx
}

func (s pgScope) ExecBatch(ctx context.Context, stmts []Statement) error {
	batch := &pgx.Batch{}
	for _, stmt := range stmts {
		batch.Queue(stmt.SQL, stmt.Args...)
	}
	results := s.tx.SendBatch(ctx, batch)
	for i := range stmts {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}
	return results.Close()
}

func (s pgScope) Commit(ctx context.Context) error   { return s.tx.Commit(ctx) }
func (s pgScope) Rollback(ctx context.Context) error { return s.tx.Rollback(ctx) }
