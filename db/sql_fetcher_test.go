package db

import (
	"context"
	"testing"

	"github.com/maxpert/bitseq/bitrev"
	"github.com/maxpert/bitseq/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchQuery_Spanner(t *testing.T) {
	q, err := BatchQuery(DialectSpanner, "enhanced_sequence", 5)
	require.NoError(t, err)

	want := "WITH t AS (\n" +
		"\tselect get_next_sequence_value(sequence enhanced_sequence) AS n\n" +
		"\tUNION ALL\n" +
		"\tselect get_next_sequence_value(sequence enhanced_sequence) AS n\n" +
		"\tUNION ALL\n" +
		"\tselect get_next_sequence_value(sequence enhanced_sequence) AS n\n" +
		"\tUNION ALL\n" +
		"\tselect get_next_sequence_value(sequence enhanced_sequence) AS n\n" +
		"\tUNION ALL\n" +
		"\tselect get_next_sequence_value(sequence enhanced_sequence) AS n\n" +
		")\n" +
		"SELECT n FROM t"
	assert.Equal(t, want, q)
}

func TestBatchQuery_SQLiteSingle(t *testing.T) {
	q, err := BatchQuery(DialectSQLite, "s", 1)
	require.NoError(t, err)
	assert.Equal(t, "WITH t AS (\n\tselect get_next_sequence_value('s') AS n\n)\nSELECT n FROM t", q)
}

func TestBatchQuery_Rejects(t *testing.T) {
	_, err := BatchQuery(DialectSpanner, "s; DROP TABLE x", 1)
	assert.Error(t, err)
	_, err = BatchQuery(DialectSpanner, "s", 0)
	assert.Error(t, err)
	_, err = BatchQuery(Dialect(9), "s", 1)
	assert.Error(t, err)
}

func TestSQLFetcher_PreReversed(t *testing.T) {
	spanner, err := NewSQLFetcher(nil, DialectSpanner, 0)
	require.NoError(t, err)
	assert.True(t, spanner.PreReversed())

	lite, err := NewSQLFetcher(nil, DialectSQLite, 0)
	require.NoError(t, err)
	assert.False(t, lite.PreReversed())
}

func TestSQLFetcher_SQLiteRoundTrip(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Create(sequence.SequenceDescriptor{Name: "enhanced_sequence"}))
	db := openSequenceDB(t, store)

	fetcher, err := NewSQLFetcher(db, DialectSQLite, 16)
	require.NoError(t, err)

	values, err := fetcher.Fetch(context.Background(), sequence.Config{Name: "enhanced_sequence", FetchSize: 5}, 5)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, values)
	assert.Equal(t, 1, fetcher.queries.Len())

	_, err = fetcher.Fetch(context.Background(), sequence.Config{Name: "enhanced_sequence", FetchSize: 5}, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.queries.Len(), "query text is memoized per name and size")
}

func TestSQLFetcher_ThroughRegistry(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Create(sequence.SequenceDescriptor{Name: "enhanced_sequence", StartCounter: 5000, SkipRange: &sequence.Range{Min: 1, Max: 1000}}))
	db := openSequenceDB(t, store)

	fetcher, err := NewSQLFetcher(db, DialectSQLite, 16)
	require.NoError(t, err)
	reg, err := sequence.NewRegistry(sequence.Options{NativeEnabled: true, Fetcher: fetcher})
	require.NoError(t, err)
	defer reg.Close()

	require.NoError(t, reg.Configure(sequence.Config{
		Name: "enhanced_sequence", FetchSize: 5, StartingCounter: 5000, Exclusion: &sequence.Range{Min: 1, Max: 1000},
	}))

	for raw := uint64(5000); raw < 5005; raw++ {
		v, err := reg.Next(context.Background(), "enhanced_sequence")
		require.NoError(t, err)
		assert.Equal(t, bitrev.Reverse(raw), v)
	}
	stats := reg.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(1), stats[0].RoundTrips)
}

func TestSQLFetcher_UnknownSequence(t *testing.T) {
	db := openSequenceDB(t, newTestStore(t))
	fetcher, err := NewSQLFetcher(db, DialectSQLite, 16)
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background(), sequence.Config{Name: "missing", FetchSize: 2}, 2)
	assert.Error(t, err)
}
