package sequence

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/maxpert/bitseq/bitrev"
	"github.com/maxpert/bitseq/telemetry"
	"github.com/rs/zerolog/log"
)

// Fetcher advances a native sequence. One call is one network exchange that
// returns up to count raw counters in the order the backend produced them.
type Fetcher interface {
	Fetch(ctx context.Context, cfg Config, count int) ([]uint64, error)
}

// PreReversed is implemented by fetchers whose backend already bit-reverses
// (a server-side bit_reversed_positive sequence). Their values are cached as-is.
type PreReversed interface {
	PreReversed() bool
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, cfg Config, count int) ([]uint64, error)

func (f FetcherFunc) Fetch(ctx context.Context, cfg Config, count int) ([]uint64, error) {
	return f(ctx, cfg, count)
}

// Allocator hands out unique values for one sequence.
type Allocator interface {
	Next(ctx context.Context) (int64, error)
	Config() Config
	Mode() EmulationMode
	Stats() Stats
}

// Stats is a point-in-time view of an allocator.
type Stats struct {
	Name       string        `json:"name"`
	Mode       EmulationMode `json:"mode"`
	FetchSize  int           `json:"fetch_size"`
	Pending    int           `json:"pending"`
	RoundTrips uint64        `json:"round_trips"`
	Served     uint64        `json:"served"`
	Discarded  uint64        `json:"discarded"`
}

// BatchAllocator serves a native sequence from a ValueCache, refilling it
// with FetchSize values per round trip.
type BatchAllocator struct {
	cfg          Config
	fetcher      Fetcher
	preReversed  bool
	fetchTimeout time.Duration
	cache        ValueCache

	roundTrips atomic.Uint64
	served     atomic.Uint64
	discarded  atomic.Uint64
}

// NewBatchAllocator creates an allocator. fetchTimeout bounds every refill,
// 0 means the refill runs until the backend answers.
func NewBatchAllocator(cfg Config, fetcher Fetcher, fetchTimeout time.Duration) *BatchAllocator {
	a := &BatchAllocator{
		cfg:          cfg,
		fetcher:      fetcher,
		fetchTimeout: fetchTimeout,
	}
	if pr, ok := fetcher.(PreReversed); ok {
		a.preReversed = pr.PreReversed()
	}
	return a
}

func (a *BatchAllocator) Config() Config      { return a.cfg }
func (a *BatchAllocator) Mode() EmulationMode { return Native }

// Next returns the next value. A cache hit never blocks on I/O. On a miss the
// caller either starts the single refill for this sequence or waits for the
// one already running; cancelling ctx only stops this caller from waiting.
// A cancelled caller gets ctx.Err() as is, without an AllocationError wrapper,
// so ReasonOf reports "" for it.
func (a *BatchAllocator) Next(ctx context.Context) (int64, error) {
	for {
		v, ok, r, start := a.cache.claim()
		if ok {
			a.served.Add(1)
			telemetry.SequenceValuesServedTotal.With(a.cfg.Name).Inc()
			return v, nil
		}
		if start {
			go a.refill(context.WithoutCancel(ctx), r)
		}

		select {
		case <-r.done:
			if r.err != nil {
				return 0, r.err
			}
			// Values were published; loop and race for one. Losers start
			// the next refill.
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (a *BatchAllocator) refill(ctx context.Context, r *refill) {
	if a.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.fetchTimeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := a.fetcher.Fetch(ctx, a.cfg, a.cfg.FetchSize)
	a.roundTrips.Add(1)
	telemetry.SequenceRefillSeconds.Observe(time.Since(start).Seconds())

	var values []int64
	if err == nil {
		values, err = a.transform(raw)
	}

	if err != nil {
		telemetry.SequenceRefillsTotal.With(a.cfg.Name, "failed").Inc()
		log.Warn().
			Err(err).
			Str("sequence", a.cfg.Name).
			Int("fetch_size", a.cfg.FetchSize).
			Msg("Sequence refill failed")
		a.cache.publish(r, nil, newError(ReasonTransportFailure, a.cfg.Name, err))
		return
	}

	telemetry.SequenceRefillsTotal.With(a.cfg.Name, "success").Inc()
	log.Debug().
		Str("sequence", a.cfg.Name).
		Int("count", len(values)).
		Dur("took", time.Since(start)).
		Msg("Sequence cache refilled")
	a.cache.publish(r, values, nil)
}

// transform validates a fetched batch and reverses it. Any invalid value fails
// the whole batch so nothing is partially published.
func (a *BatchAllocator) transform(raw []uint64) ([]int64, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyFetch
	}

	values := make([]int64, 0, len(raw))
	for _, r := range raw {
		if !bitrev.InDomain(r) {
			return nil, fmt.Errorf("%w: %d", ErrCounterOutOfRange, r)
		}
		if a.preReversed {
			values = append(values, int64(r))
			continue
		}
		if a.cfg.Excludes(int64(r)) {
			a.discarded.Add(1)
			telemetry.SequenceValuesDiscardedTotal.With(a.cfg.Name).Inc()
			continue
		}
		values = append(values, bitrev.Reverse(r))
	}
	return values, nil
}

// Stats returns counters and cache depth.
func (a *BatchAllocator) Stats() Stats {
	return Stats{
		Name:       a.cfg.Name,
		Mode:       Native,
		FetchSize:  a.cfg.FetchSize,
		Pending:    a.cache.Len(),
		RoundTrips: a.roundTrips.Load(),
		Served:     a.served.Load(),
		Discarded:  a.discarded.Load(),
	}
}
