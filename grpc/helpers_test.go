package grpc

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/maxpert/bitseq/db"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestMain(m *testing.M) {
	RegisterZstdCompressor()
	os.Exit(m.Run())
}

func newTestStore(t *testing.T) *db.SequenceStore {
	t.Helper()
	store, err := db.OpenSequenceStore(filepath.Join(t.TempDir(), "sequences"), "/seq/")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// startTestServer serves source on a loopback port with a tiny admin handler at /hello.
func startTestServer(t *testing.T, source RangeSource) *Server {
	t.Helper()
	admin := http.NewServeMux()
	admin.HandleFunc("/hello", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "hello")
	})
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "# metrics")
	})

	srv, err := NewServer(ServerConfig{
		Address:        "127.0.0.1",
		Port:           0,
		Source:         source,
		HTTPHandler:    admin,
		MetricsHandler: metrics,
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

func dialTestServer(t *testing.T, srv *Server, secret string) *grpc.ClientConn {
	t.Helper()
	conn, err := Dial(srv.Addr().String(), secret)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}
