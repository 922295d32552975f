package id

import (
	"context"
	"sync"
	"testing"

	"github.com/maxpert/bitseq/bitrev"
	"github.com/maxpert/bitseq/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterFetcher() sequence.Fetcher {
	var mu sync.Mutex
	next := uint64(1)
	return sequence.FetcherFunc(func(ctx context.Context, cfg sequence.Config, count int) ([]uint64, error) {
		mu.Lock()
		defer mu.Unlock()
		out := make([]uint64, count)
		for i := range out {
			out[i] = next
			next++
		}
		return out, nil
	})
}

func newRegistry(t *testing.T) *sequence.Registry {
	t.Helper()
	r, err := sequence.NewRegistry(sequence.Options{NativeEnabled: true, Fetcher: counterFetcher()})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestParseParams_Full(t *testing.T) {
	cfg, err := ParseParams(Params{
		ParamSequenceName: "enhanced_sequence",
		ParamFetchSize:    "5",
		ParamInitialValue: "5000",
		ParamExcludeRange: "[1,1000]",
	})
	require.NoError(t, err)
	assert.Equal(t, "enhanced_sequence", cfg.Name)
	assert.Equal(t, 5, cfg.FetchSize)
	assert.Equal(t, int64(5000), cfg.StartingCounter)
	require.NotNil(t, cfg.Exclusion)
	assert.Equal(t, sequence.Range{Min: 1, Max: 1000}, *cfg.Exclusion)
	assert.Equal(t, sequence.EmulationDefault, cfg.Emulation)
}

func TestParseParams_Defaults(t *testing.T) {
	cfg, err := ParseParams(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSequenceName, cfg.Name)
	assert.Equal(t, sequence.DefaultFetchSize, cfg.FetchSize)

	cfg, err = ParseParams(Params{ParamSequenceName: "orders"})
	require.NoError(t, err)
	assert.Equal(t, sequence.DefaultFetchSize, cfg.FetchSize)
	assert.Nil(t, cfg.Exclusion)
}

func TestParseParams_Errors(t *testing.T) {
	tests := []Params{
		{ParamFetchSize: "5"},
		{ParamSequenceName: "s", ParamFetchSize: "five"},
		{ParamSequenceName: "s", ParamInitialValue: "x"},
		{ParamSequenceName: "s", ParamExcludeRange: "1,1000"},
		{ParamSequenceName: "s", ParamExcludeRange: "[1]"},
		{ParamSequenceName: "s", ParamEmulation: "sharded"},
		{ParamSequenceName: "s", "increment_size": "1"},
	}
	for _, p := range tests {
		_, err := ParseParams(p)
		assert.Error(t, err, "%v", p)
	}
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange(" [ 10 , 20 ] ")
	require.NoError(t, err)
	assert.Equal(t, sequence.Range{Min: 10, Max: 20}, r)
}

func TestBind_NextID(t *testing.T) {
	reg := newRegistry(t)
	gen, err := Bind(reg, "Customer", Params{ParamSequenceName: "customer_seq", ParamFetchSize: "5"})
	require.NoError(t, err)
	assert.Equal(t, "customer_seq", gen.SequenceName())
	assert.Equal(t, "Customer", gen.Entity())

	for raw := uint64(1); raw <= 5; raw++ {
		v, err := gen.NextID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, bitrev.Reverse(raw), v)
	}
}

func TestBind_SharedDefaultSequence(t *testing.T) {
	reg := newRegistry(t)
	a, err := Bind(reg, "Invoice", nil)
	require.NoError(t, err)
	b, err := Bind(reg, "Payment", Params{})
	require.NoError(t, err)
	assert.Equal(t, a.SequenceName(), b.SequenceName())

	v1, err := a.NextID(context.Background())
	require.NoError(t, err)
	v2, err := b.NextID(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
}

func TestBind_ConflictingDefinition(t *testing.T) {
	reg := newRegistry(t)
	_, err := Bind(reg, "A", Params{ParamSequenceName: "shared", ParamFetchSize: "10"})
	require.NoError(t, err)

	_, err = Bind(reg, "B", Params{ParamSequenceName: "shared", ParamFetchSize: "20"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sequence.ErrDuplicateSequence)
}

func TestBind_ConcurrentUniqueness(t *testing.T) {
	reg := newRegistry(t)
	gen, err := Bind(reg, "Event", Params{ParamSequenceName: "event_seq", ParamFetchSize: "3"})
	require.NoError(t, err)

	const goroutines = 10
	const idsPerGoroutine = 1000

	var wg sync.WaitGroup
	idsChan := make(chan int64, goroutines*idsPerGoroutine)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < idsPerGoroutine; i++ {
				v, err := gen.NextID(context.Background())
				if err != nil {
					t.Errorf("NextID: %v", err)
					return
				}
				idsChan <- v
			}
		}()
	}
	wg.Wait()
	close(idsChan)

	seen := make(map[int64]bool)
	for v := range idsChan {
		if seen[v] {
			t.Fatalf("duplicate ID: %d", v)
		}
		seen[v] = true
	}
	if len(seen) != goroutines*idsPerGoroutine {
		t.Fatalf("expected %d unique IDs, got %d", goroutines*idsPerGoroutine, len(seen))
	}
}
