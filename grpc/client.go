package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/maxpert/bitseq/db"
	"github.com/maxpert/bitseq/sequence"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// DialOptions returns the client options every bitseq connection uses.
func DialOptions(secret string) []grpc.DialOption {
	// Requests go out plain; the server compresses large Advance responses.
	callOpts := []grpc.CallOption{
		grpc.CallContentSubtype(codecName),
		grpc.MaxCallRecvMsgSize(maxMessageSize),
		grpc.MaxCallSendMsgSize(maxMessageSize),
	}

	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(callOpts...),
		grpc.WithChainUnaryInterceptor(UnaryClientInterceptorWithSecret(secret)),
	}
}

// Dial opens a lazy connection to a bitseq server.
func Dial(address string, secret string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(address, DialOptions(secret)...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	log.Debug().Str("address", address).Msg("Created sequence server client")
	return conn, nil
}

// RemoteFetcher refills sequence caches from a remote bitseq server.
type RemoteFetcher struct {
	client *SequenceServiceClient
}

var _ sequence.Fetcher = (*RemoteFetcher)(nil)

func NewRemoteFetcher(conn grpc.ClientConnInterface) *RemoteFetcher {
	return &RemoteFetcher{client: NewSequenceServiceClient(conn)}
}

// Fetch implements sequence.Fetcher. Counts above MaxAdvanceCount are split
// into several calls.
func (f *RemoteFetcher) Fetch(ctx context.Context, cfg sequence.Config, count int) ([]uint64, error) {
	values := make([]uint64, 0, count)
	for remaining := count; remaining > 0; {
		n := min(remaining, MaxAdvanceCount)
		resp, err := f.client.Advance(ctx, &AdvanceRequest{Name: cfg.Name, Count: n})
		if err != nil {
			return nil, fmt.Errorf("advance %s: %w", cfg.Name, err)
		}
		if len(resp.Values) == 0 {
			break
		}
		values = append(values, resp.Values...)
		remaining -= len(resp.Values)
		if len(resp.Values) < n {
			break
		}
	}
	return values, nil
}

// Ensure creates every descriptor on the server, identical re-creates are no-ops.
func (f *RemoteFetcher) Ensure(ctx context.Context, descs []sequence.SequenceDescriptor) error {
	for _, d := range descs {
		if _, err := f.client.Create(ctx, &CreateRequest{Sequence: InfoOf(d)}); err != nil {
			return fmt.Errorf("create %s: %w", d.Name, err)
		}
	}
	return nil
}

// Describe lists the server's sequences.
func (f *RemoteFetcher) Describe(ctx context.Context) ([]sequence.SequenceDescriptor, error) {
	resp, err := f.client.Describe(ctx, &DescribeRequest{})
	if err != nil {
		return nil, err
	}
	descs := make([]sequence.SequenceDescriptor, 0, len(resp.Sequences))
	for _, info := range resp.Sequences {
		descs = append(descs, info.Descriptor())
	}
	return descs, nil
}

// RemoteCatalog adapts a RemoteFetcher to db.SequenceCatalog so schema
// synthesis can define sequences on the server.
type RemoteCatalog struct {
	fetcher *RemoteFetcher
	timeout time.Duration
}

var _ db.SequenceCatalog = (*RemoteCatalog)(nil)

// NewRemoteCatalog bounds each catalog call by timeout, 0 means no bound.
func NewRemoteCatalog(fetcher *RemoteFetcher, timeout time.Duration) *RemoteCatalog {
	return &RemoteCatalog{fetcher: fetcher, timeout: timeout}
}

func (c *RemoteCatalog) callContext() (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.timeout)
}

func (c *RemoteCatalog) Create(d sequence.SequenceDescriptor) error {
	ctx, cancel := c.callContext()
	defer cancel()
	return c.fetcher.Ensure(ctx, []sequence.SequenceDescriptor{d})
}

func (c *RemoteCatalog) List() ([]sequence.SequenceDescriptor, error) {
	ctx, cancel := c.callContext()
	defer cancel()
	return c.fetcher.Describe(ctx)
}
