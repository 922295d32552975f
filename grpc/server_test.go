package grpc

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/maxpert/bitseq/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestServer_AdvanceDescribeCreate(t *testing.T) {
	store := newTestStore(t)
	srv := startTestServer(t, store)
	client := NewSequenceServiceClient(dialTestServer(t, srv, ""))
	ctx := context.Background()

	info := SequenceInfo{
		Name:         "orders_seq",
		Kind:         sequence.KindBitReversedPositive,
		StartCounter: 100,
		HasSkipRange: true,
		SkipMin:      102,
		SkipMax:      103,
	}
	_, err := client.Create(ctx, &CreateRequest{Sequence: info})
	require.NoError(t, err)

	// Identical definition is accepted again.
	_, err = client.Create(ctx, &CreateRequest{Sequence: info})
	require.NoError(t, err)

	conflicting := info
	conflicting.StartCounter = 7
	_, err = client.Create(ctx, &CreateRequest{Sequence: conflicting})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	resp, err := client.Advance(ctx, &AdvanceRequest{Name: "orders_seq", Count: 4})
	require.NoError(t, err)
	assert.Equal(t, []uint64{100, 101, 104, 105}, resp.Values)

	desc, err := client.Describe(ctx, &DescribeRequest{})
	require.NoError(t, err)
	require.Len(t, desc.Sequences, 1)
	assert.Equal(t, info, desc.Sequences[0])
}

func TestServer_AdvanceErrors(t *testing.T) {
	store := newTestStore(t)
	srv := startTestServer(t, store)
	client := NewSequenceServiceClient(dialTestServer(t, srv, ""))
	ctx := context.Background()

	_, err := client.Advance(ctx, &AdvanceRequest{Name: "missing", Count: 1})
	assert.Equal(t, codes.NotFound, status.Code(err))

	require.NoError(t, store.Create(sequence.SequenceDescriptor{Name: "s", Kind: sequence.KindBitReversedPositive}))

	tests := []struct {
		name string
		req  *AdvanceRequest
		code codes.Code
	}{
		{"zero count", &AdvanceRequest{Name: "s", Count: 0}, codes.InvalidArgument},
		{"negative count", &AdvanceRequest{Name: "s", Count: -3}, codes.InvalidArgument},
		{"count above cap", &AdvanceRequest{Name: "s", Count: MaxAdvanceCount + 1}, codes.InvalidArgument},
		{"empty name", &AdvanceRequest{Count: 1}, codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Advance(ctx, tt.req)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}

	_, err = client.Create(ctx, &CreateRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_HTTPOnSamePort(t *testing.T) {
	srv := startTestServer(t, newTestStore(t))
	base := "http://" + srv.Addr().String()

	for path, want := range map[string]string{
		"/hello":   "hello",
		"/metrics": "# metrics",
	} {
		resp, err := http.Get(base + path)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, want, string(body), path)
	}
}

func TestServer_StopTwice(t *testing.T) {
	srv := startTestServer(t, newTestStore(t))
	srv.Stop()
	srv.Stop()
}

func TestNewServer_RequiresSource(t *testing.T) {
	_, err := NewServer(ServerConfig{Address: "127.0.0.1"})
	assert.Error(t, err)
}

func TestToStatus_ContextErrors(t *testing.T) {
	assert.Equal(t, codes.Canceled, status.Code(toStatus(context.Canceled)))
	assert.Equal(t, codes.DeadlineExceeded, status.Code(toStatus(context.DeadlineExceeded)))
	assert.Equal(t, codes.Internal, status.Code(toStatus(io.ErrUnexpectedEOF)))
}
