package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/maxpert/bitseq/bitrev"
	"github.com/stretchr/testify/require"
)

func TestLoadThenVerify_LocalStore(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Store:       filepath.Join(dir, "store"),
		Sequence:    "load_seq",
		FetchSize:   10,
		Start:       1,
		Driver:      "sqlite3",
		DSN:         filepath.Join(dir, "target.db"),
		Table:       "loaded",
		Records:     200,
		Threads:     4,
		BatchSize:   16,
		CreateTable: true,
		Buckets:     16,
	}
	require.NoError(t, cfg.Validate())

	ctx := context.Background()
	require.NoError(t, executeLoad(ctx, cfg))

	target, err := OpenTarget(cfg.Driver, cfg.DSN, 1)
	require.NoError(t, err)
	defer target.Close()

	ids, err := target.ReadIDs(ctx, cfg.Table)
	require.NoError(t, err)
	require.Len(t, ids, 200)

	raws := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		raws[bitrev.Unreverse(id)] = true
	}
	for raw := uint64(1); raw <= 200; raw++ {
		require.True(t, raws[raw], "missing counter %d", raw)
	}

	require.NoError(t, executeVerify(ctx, cfg))
}

func TestOpenSource_ReopenContinuesSequence(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{Store: filepath.Join(dir, "store"), Sequence: "s", FetchSize: 5, Start: 10}
	ctx := context.Background()

	src, err := OpenSource(ctx, cfg)
	require.NoError(t, err)
	v, err := src.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, bitrev.Reverse(10), v)
	require.NoError(t, src.Close())

	src, err = OpenSource(ctx, cfg)
	require.NoError(t, err)
	defer src.Close()
	v, err = src.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, bitrev.Reverse(15), v)
	require.Equal(t, uint64(1), src.Stats().RoundTrips)
}
