package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/maxpert/bitseq/bitrev"
	"github.com/maxpert/bitseq/db"
	"github.com/maxpert/bitseq/ddl"
	"github.com/maxpert/bitseq/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

func newRowsServer(t *testing.T) (*httptest.Server, *sql.DB) {
	t.Helper()
	registry, err := sequence.NewRegistry(sequence.Options{NativeEnabled: true, Fetcher: &countingFetcher{}})
	require.NoError(t, err)
	t.Cleanup(registry.Close)
	require.NoError(t, registry.Configure(sequence.Config{Name: "orders_seq", FetchSize: 10}))

	conn, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })
	_, err = conn.Exec("CREATE TABLE orders (order_id INTEGER PRIMARY KEY, customer TEXT, total REAL)")
	require.NoError(t, err)

	entities := []ddl.EntityTable{{
		Name:       "orders",
		Columns:    []string{"order_id INT64 NOT NULL", "customer STRING(64)", "total FLOAT64"},
		PrimaryKey: []string{"order_id"},
	}}
	batcher := db.NewStatementBatcher(db.SQLOpener{DB: conn}, 2)

	mux := http.NewServeMux()
	RegisterRoutes(mux, NewAdminHandlers(registry, nil, entities, batcher))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, conn
}

func TestInsertRows(t *testing.T) {
	srv, conn := newRowsServer(t)

	body := `{"sequence":"orders_seq","rows":[{"customer":"a","total":1.5},{"customer":"b"},{"customer":"c","total":3}]}`
	code, env := do(t, http.MethodPost, srv.URL+"/admin/entities/orders/rows", body, nil)
	require.Equal(t, http.StatusOK, code, env.Error)

	var resp insertRowsResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "orders", resp.Table)
	assert.Equal(t, []int64{bitrev.Reverse(1), bitrev.Reverse(2), bitrev.Reverse(3)}, resp.IDs)
	assert.Equal(t, 2, resp.Flushes)

	var customer string
	require.NoError(t, conn.QueryRow("SELECT customer FROM orders WHERE order_id = ?", bitrev.Reverse(2)).Scan(&customer))
	assert.Equal(t, "b", customer)

	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM orders").Scan(&n))
	assert.Equal(t, 3, n)
}

func TestInsertRows_EmulatedCounterSharesDatabase(t *testing.T) {
	conn, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "app.db")+"?_txlock=immediate&_busy_timeout=500")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = conn.Exec("CREATE TABLE orders (id INTEGER PRIMARY KEY, customer TEXT)")
	require.NoError(t, err)

	counter, err := db.NewTableCounter(conn, db.CounterDialectSQLite)
	require.NoError(t, err)
	require.NoError(t, counter.EnsureTable(context.Background(), sequence.TableDescriptor{
		Name:         "orders_seq",
		Column:       sequence.EmulationColumn,
		StartCounter: 1,
	}))

	registry, err := sequence.NewRegistry(sequence.Options{NativeEnabled: false, Counter: counter})
	require.NoError(t, err)
	t.Cleanup(registry.Close)
	require.NoError(t, registry.Configure(sequence.Config{Name: "orders_seq", FetchSize: 10}))

	entities := []ddl.EntityTable{{Name: "orders", Columns: []string{"id INT64 NOT NULL", "customer STRING(64)"}, PrimaryKey: []string{"id"}}}
	mux := http.NewServeMux()
	RegisterRoutes(mux, NewAdminHandlers(registry, nil, entities, db.NewStatementBatcher(db.SQLOpener{DB: conn}, 2)))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	body := `{"sequence":"orders_seq","rows":[{"customer":"a"},{"customer":"b"},{"customer":"c"}]}`
	code, env := do(t, http.MethodPost, srv.URL+"/admin/entities/orders/rows", body, nil)
	require.Equal(t, http.StatusOK, code, env.Error)

	var resp insertRowsResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, []int64{1, 2, 3}, resp.IDs)

	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM orders").Scan(&n))
	assert.Equal(t, 3, n)
}

func TestInsertRows_Errors(t *testing.T) {
	srv, conn := newRowsServer(t)
	url := srv.URL + "/admin/entities/orders/rows"

	tests := []struct {
		name string
		url  string
		body string
		code int
	}{
		{"unknown table", srv.URL + "/admin/entities/missing/rows", `{"sequence":"orders_seq","rows":[{}]}`, http.StatusNotFound},
		{"bad json", url, `{`, http.StatusBadRequest},
		{"no sequence", url, `{"rows":[{}]}`, http.StatusBadRequest},
		{"no rows", url, `{"sequence":"orders_seq","rows":[]}`, http.StatusBadRequest},
		{"bad column", url, `{"sequence":"orders_seq","rows":[{"a b":1}]}`, http.StatusBadRequest},
		{"id assigned", url, `{"sequence":"orders_seq","rows":[{"order_id":1}]}`, http.StatusBadRequest},
		{"unknown sequence", url, `{"sequence":"nope","rows":[{"customer":"x"}]}`, http.StatusNotFound},
		{"database error", url, `{"sequence":"orders_seq","rows":[{"missing_column":"x"}]}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, http.MethodPost, tt.url, tt.body, nil)
			assert.Equal(t, tt.code, code)
			assert.NotEmpty(t, env.Error)
		})
	}

	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM orders").Scan(&n))
	assert.Zero(t, n)
}

func TestInsertRows_NotConfigured(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	code, env := do(t, http.MethodPost, srv.URL+"/admin/entities/orders/rows", `{}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.NotEmpty(t, env.Error)
}

func TestInsertStatement(t *testing.T) {
	stmt, err := insertStatement("orders", "id", map[string]interface{}{"total": 2, "customer": "a"})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO orders (id, customer, total) VALUES (?, ?, ?)", stmt.SQL)
	assert.Equal(t, []any{nil, "a", 2}, stmt.Args)
}
