package sequence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// stubFetcher hands out consecutive raw counters starting at 1.
type stubFetcher struct {
	mu      sync.Mutex
	next    uint64
	calls   atomic.Int32
	failFor atomic.Int32 // number of upcoming calls that fail
	block   chan struct{}
	started chan struct{}
}

var errStubTransport = errors.New("stub transport down")

func newStubFetcher() *stubFetcher {
	return &stubFetcher{next: 1}
}

func (f *stubFetcher) Fetch(ctx context.Context, cfg Config, count int) ([]uint64, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failFor.Load() > 0 {
		f.failFor.Add(-1)
		return nil, errStubTransport
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, count)
	for i := range out {
		out[i] = f.next
		f.next++
	}
	return out, nil
}

// stubCounter emulates a single-row counter table.
type stubCounter struct {
	mu    sync.Mutex
	value map[string]int64
	calls atomic.Int32
	fail  atomic.Bool
}

func newStubCounter() *stubCounter {
	return &stubCounter{value: make(map[string]int64)}
}

func (c *stubCounter) NextValue(ctx context.Context, cfg Config) (int64, error) {
	c.calls.Add(1)
	if c.fail.Load() {
		return 0, errors.New("counter table unavailable")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.value[cfg.Name]
	if !ok {
		v = cfg.Start()
	}
	c.value[cfg.Name] = v + 1
	return v, nil
}
