package main

import (
	"context"
	"fmt"
	"time"

	"github.com/maxpert/bitseq/db"
	bitseqgrpc "github.com/maxpert/bitseq/grpc"
	"github.com/maxpert/bitseq/sequence"
	"google.golang.org/grpc"
)

const fetchTimeout = 10 * time.Second

// Source hands out IDs for the configured sequence.
type Source struct {
	registry *sequence.Registry
	name     string
	store    *db.SequenceStore
	conn     *grpc.ClientConn
}

// OpenSource connects to a bitseq node, or opens a local store, and makes
// sure the sequence exists there.
func OpenSource(ctx context.Context, cfg *Config) (*Source, error) {
	s := &Source{name: cfg.Sequence}

	seqCfg := sequence.Config{
		Name:            cfg.Sequence,
		FetchSize:       cfg.FetchSize,
		StartingCounter: cfg.Start,
		Emulation:       sequence.Native,
	}
	desc, _, _ := sequence.Describe(seqCfg, sequence.Native)

	var fetcher sequence.Fetcher
	if cfg.Server != "" {
		conn, err := bitseqgrpc.Dial(cfg.Server, cfg.Secret)
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s: %w", cfg.Server, err)
		}
		s.conn = conn
		remote := bitseqgrpc.NewRemoteFetcher(conn)
		if err := remote.Ensure(ctx, []sequence.SequenceDescriptor{desc}); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create sequence: %w", err)
		}
		fetcher = remote
	} else {
		store, err := db.OpenSequenceStore(cfg.Store, "")
		if err != nil {
			return nil, err
		}
		s.store = store
		if err := store.Create(desc); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create sequence: %w", err)
		}
		fetcher = store
	}

	registry, err := sequence.NewRegistry(sequence.Options{
		NativeEnabled: true,
		Fetcher:       fetcher,
		FetchTimeout:  fetchTimeout,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := registry.Configure(seqCfg); err != nil {
		s.Close()
		return nil, err
	}
	s.registry = registry
	return s, nil
}

func (s *Source) Next(ctx context.Context) (int64, error) {
	return s.registry.Next(ctx, s.name)
}

// Stats returns the allocator counters of the sequence.
func (s *Source) Stats() sequence.Stats {
	for _, st := range s.registry.Stats() {
		if st.Name == s.name {
			return st
		}
	}
	return sequence.Stats{Name: s.name}
}

func (s *Source) Close() error {
	if s.registry != nil {
		s.registry.Close()
	}
	var err error
	if s.conn != nil {
		err = s.conn.Close()
	}
	if s.store != nil {
		if cerr := s.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
