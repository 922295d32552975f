package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/maxpert/bitseq/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRows struct {
	vals   []int64
	names  []string
	i      int
	closed bool
}

func (r *fakeRows) len() int {
	if r.names != nil {
		return len(r.names)
	}
	return len(r.vals)
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.closed || r.i >= r.len() {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	switch d := dest[0].(type) {
	case *int64:
		*d = r.vals[r.i-1]
	case *string:
		*d = r.names[r.i-1]
	default:
		return fmt.Errorf("unsupported scan target %T", d)
	}
	return nil
}

func (r *fakeRows) Values() ([]any, error) {
	if r.names != nil {
		return []any{r.names[r.i-1]}, nil
	}
	return []any{r.vals[r.i-1]}, nil
}

type fakeQuerier struct {
	sql  string
	args []any
	rows *fakeRows
	err  error
}

func (q *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.sql = sql
	q.args = args
	if q.err != nil {
		return nil, q.err
	}
	return q.rows, nil
}

func TestPgFetcher_Fetch(t *testing.T) {
	q := &fakeQuerier{rows: &fakeRows{vals: []int64{11, 12, 13}}}
	f := NewPgFetcher(q)

	values, err := f.Fetch(context.Background(), sequence.Config{Name: "orders_seq", FetchSize: 3}, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{11, 12, 13}, values)
	assert.Equal(t, pgBatchQuery, q.sql)
	assert.Equal(t, []any{`"orders_seq"`, 3}, q.args)
	assert.True(t, q.rows.closed)
}

func TestPgFetcher_MixedCaseNameMatchesCreate(t *testing.T) {
	q := &fakeQuerier{rows: &fakeRows{vals: []int64{1}}}
	_, err := NewPgFetcher(q).Fetch(context.Background(), sequence.Config{Name: "customerId", FetchSize: 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, []any{`"customerId"`, 1}, q.args)

	stmt, err := PgCreateSequence(sequence.SequenceDescriptor{Name: "customerId"})
	require.NoError(t, err)
	assert.Equal(t, `CREATE SEQUENCE IF NOT EXISTS "customerId" START WITH 1`, stmt)
}

func TestPgFetcher_Errors(t *testing.T) {
	f := NewPgFetcher(&fakeQuerier{err: errors.New("connection refused")})
	_, err := f.Fetch(context.Background(), sequence.Config{Name: "s", FetchSize: 1}, 1)
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), sequence.Config{Name: "bad name", FetchSize: 1}, 1)
	assert.Error(t, err)

	neg := NewPgFetcher(&fakeQuerier{rows: &fakeRows{vals: []int64{-1}}})
	_, err = neg.Fetch(context.Background(), sequence.Config{Name: "s", FetchSize: 1}, 1)
	assert.ErrorIs(t, err, sequence.ErrCounterOutOfRange)
}

type fakeExecer struct {
	stmts []string
	err   error
}

func (e *fakeExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	e.stmts = append(e.stmts, sql)
	return pgconn.NewCommandTag("CREATE SEQUENCE"), e.err
}

func TestEnsurePgSequences(t *testing.T) {
	exec := &fakeExecer{}
	err := EnsurePgSequences(context.Background(), exec, []sequence.SequenceDescriptor{
		{Name: "orders_seq"},
		{Name: "invoice_seq", StartCounter: 5000, SkipRange: &sequence.Range{Min: 1, Max: 10}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		`CREATE SEQUENCE IF NOT EXISTS "orders_seq" START WITH 1`,
		`CREATE SEQUENCE IF NOT EXISTS "invoice_seq" START WITH 5000`,
	}, exec.stmts)

	err = EnsurePgSequences(context.Background(), &fakeExecer{}, []sequence.SequenceDescriptor{{Name: `x"; drop`}})
	assert.Error(t, err)

	err = EnsurePgSequences(context.Background(), &fakeExecer{err: errors.New("permission denied")}, []sequence.SequenceDescriptor{{Name: "s"}})
	assert.Error(t, err)
}

type fakeSession struct {
	fakeQuerier
	fakeExecer
}

func TestPgCatalog(t *testing.T) {
	session := &fakeSession{fakeQuerier: fakeQuerier{rows: &fakeRows{names: []string{"invoice_seq", "orders_seq"}}}}
	catalog := NewPgCatalog(session, time.Second)

	require.NoError(t, catalog.Create(sequence.SequenceDescriptor{Name: "orders_seq", StartCounter: 7}))
	assert.Equal(t, []string{`CREATE SEQUENCE IF NOT EXISTS "orders_seq" START WITH 7`}, session.stmts)

	descs, err := catalog.List()
	require.NoError(t, err)
	assert.Equal(t, pgListSequences, session.sql)
	assert.Equal(t, []sequence.SequenceDescriptor{
		{Name: "invoice_seq", Kind: sequence.KindBitReversedPositive},
		{Name: "orders_seq", Kind: sequence.KindBitReversedPositive},
	}, descs)
}
