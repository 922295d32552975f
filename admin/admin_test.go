package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/maxpert/bitseq/bitrev"
	"github.com/maxpert/bitseq/cfg"
	"github.com/maxpert/bitseq/ddl"
	"github.com/maxpert/bitseq/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	next atomic.Uint64
}

func (f *countingFetcher) Fetch(_ context.Context, _ sequence.Config, count int) ([]uint64, error) {
	out := make([]uint64, count)
	for i := range out {
		out[i] = f.next.Add(1)
	}
	return out, nil
}

type fixedInspector struct {
	sequences map[string]bool
}

func (i fixedInspector) ExistingTables(context.Context) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (i fixedInspector) ExistingSequences(context.Context) (map[string]bool, error) {
	return i.sequences, nil
}

func newTestServer(t *testing.T, inspector ddl.Inspector) (*httptest.Server, *sequence.Registry) {
	t.Helper()
	registry, err := sequence.NewRegistry(sequence.Options{NativeEnabled: true, Fetcher: &countingFetcher{}})
	require.NoError(t, err)
	t.Cleanup(registry.Close)
	require.NoError(t, registry.Configure(sequence.Config{Name: "orders_seq", FetchSize: 10}))
	require.NoError(t, registry.Configure(sequence.Config{
		Name:            "invoice_seq",
		FetchSize:       5,
		StartingCounter: 5000,
		Exclusion:       &sequence.Range{Min: 1, Max: 100},
	}))

	mux := http.NewServeMux()
	RegisterRoutes(mux, NewAdminHandlers(registry, inspector, nil, nil))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, registry
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
	Reason string          `json:"reason"`
}

func do(t *testing.T, method, url, body string, headers map[string]string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestListSequences(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	code, env := do(t, http.MethodGet, srv.URL+"/admin/sequences", "", nil)
	require.Equal(t, http.StatusOK, code)

	var views []sequenceView
	require.NoError(t, json.Unmarshal(env.Data, &views))
	require.Len(t, views, 2)
	assert.Equal(t, "invoice_seq", views[0].Name)
	assert.Equal(t, "[1,100]", views[0].Exclusion)
	assert.Nil(t, views[0].Stats)
	assert.Equal(t, "orders_seq", views[1].Name)
}

func TestNext(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	code, env := do(t, http.MethodPost, srv.URL+"/admin/sequences/orders_seq/next?count=3", "", nil)
	require.Equal(t, http.StatusOK, code)

	var body struct {
		Sequence string  `json:"sequence"`
		Values   []int64 `json:"values"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, "orders_seq", body.Sequence)
	assert.Equal(t, []int64{bitrev.Reverse(1), bitrev.Reverse(2), bitrev.Reverse(3)}, body.Values)

	code, env = do(t, http.MethodGet, srv.URL+"/admin/sequences/orders_seq", "", nil)
	require.Equal(t, http.StatusOK, code)
	var view sequenceView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.NotNil(t, view.Stats)
	assert.Equal(t, uint64(3), view.Stats.Served)
	assert.Equal(t, uint64(1), view.Stats.RoundTrips)
}

func TestNextErrors(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	code, env := do(t, http.MethodPost, srv.URL+"/admin/sequences/missing/next", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(sequence.ReasonSequenceUnknown), env.Reason)

	for _, count := range []string{"0", "-1", "abc", "1001"} {
		code, _ := do(t, http.MethodPost, srv.URL+"/admin/sequences/orders_seq/next?count="+count, "", nil)
		assert.Equal(t, http.StatusBadRequest, code, count)
	}

	code, _ = do(t, http.MethodGet, srv.URL+"/admin/sequences/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestNativeSwitch(t *testing.T) {
	srv, registry := newTestServer(t, nil)

	code, env := do(t, http.MethodGet, srv.URL+"/admin/native", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"enabled":true}`, string(env.Data))

	code, env = do(t, http.MethodPut, srv.URL+"/admin/native", `{"enabled":false}`, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"enabled":false}`, string(env.Data))
	assert.False(t, registry.NativeEnabled())

	code, _ = do(t, http.MethodPut, srv.URL+"/admin/native", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestDDLPreview(t *testing.T) {
	srv, _ := newTestServer(t, fixedInspector{sequences: map[string]bool{"orders_seq": true}})

	var body struct {
		Mode       string   `json:"mode"`
		Statements []string `json:"statements"`
	}

	code, env := do(t, http.MethodGet, srv.URL+"/admin/ddl", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, "create", body.Mode)
	assert.Equal(t, []string{
		`create sequence invoice_seq options(sequence_kind="bit_reversed_positive", start_with_counter=5000, skip_range_min=1, skip_range_max=100)`,
		`create sequence orders_seq options(sequence_kind="bit_reversed_positive")`,
	}, body.Statements)

	code, env = do(t, http.MethodGet, srv.URL+"/admin/ddl?mode=update", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, []string{
		`create sequence invoice_seq options(sequence_kind="bit_reversed_positive", start_with_counter=5000, skip_range_min=1, skip_range_max=100)`,
	}, body.Statements)

	code, _ = do(t, http.MethodGet, srv.URL+"/admin/ddl?mode=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestDDLPreview_UpdateWithoutInspector(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	code, _ := do(t, http.MethodGet, srv.URL+"/admin/ddl?mode=update", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAuthMiddleware(t *testing.T) {
	origSecret := cfg.Config.Server.Secret
	cfg.Config.Server.Secret = "admin-secret"
	defer func() { cfg.Config.Server.Secret = origSecret }()

	srv, _ := newTestServer(t, nil)
	url := srv.URL + "/admin/native"

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"no header", nil, http.StatusUnauthorized},
		{"wrong secret", map[string]string{SecretHeader: "nope"}, http.StatusUnauthorized},
		{"secret header", map[string]string{SecretHeader: "admin-secret"}, http.StatusOK},
		{"bearer token", map[string]string{"Authorization": "Bearer admin-secret"}, http.StatusOK},
		{"malformed authorization", map[string]string{"Authorization": "Basic admin-secret"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := do(t, http.MethodGet, url, "", tt.headers)
			assert.Equal(t, tt.want, code)
		})
	}
}
