package db

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

var driverSeq atomic.Int32

// newTestStore opens a store in a temp directory, closed on cleanup.
func newTestStore(t *testing.T) *SequenceStore {
	t.Helper()
	store, err := OpenSequenceStore(filepath.Join(t.TempDir(), "sequences"), "/seq/")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// openSequenceDB registers a fresh driver over store and opens a database with it.
func openSequenceDB(t *testing.T, store *SequenceStore) *sql.DB {
	t.Helper()
	name := fmt.Sprintf("sqlite3_bitseq_test_%d", driverSeq.Add(1))
	require.NoError(t, RegisterSequenceDriver(name, store))

	db, err := sql.Open(name, filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// openPlainDB opens a file-backed SQLite database with a single connection.
func openPlainDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "plain.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n))
	return n
}
