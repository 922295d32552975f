package sequence

import (
	"context"
	"sync/atomic"

	"github.com/maxpert/bitseq/telemetry"
)

// Counter is the single-row counter table behind a table-emulated sequence.
// NextValue returns the pre-update value of one read-modify-write executed in
// its own short transaction.
type Counter interface {
	NextValue(ctx context.Context, cfg Config) (int64, error)
}

// EmulatedAllocator serves a sequence from a Counter. Values stay monotonic
// and every call costs one round trip.
type EmulatedAllocator struct {
	cfg     Config
	counter Counter

	roundTrips atomic.Uint64
	served     atomic.Uint64
}

func NewEmulatedAllocator(cfg Config, counter Counter) *EmulatedAllocator {
	return &EmulatedAllocator{cfg: cfg, counter: counter}
}

func (a *EmulatedAllocator) Config() Config      { return a.cfg }
func (a *EmulatedAllocator) Mode() EmulationMode { return TableEmulated }

func (a *EmulatedAllocator) Next(ctx context.Context) (int64, error) {
	a.roundTrips.Add(1)
	v, err := a.counter.NextValue(ctx, a.cfg)
	if err != nil {
		telemetry.SequenceEmulatedRoundTripsTotal.With(a.cfg.Name, "failed").Inc()
		return 0, newError(ReasonEmulationRoundTripFailure, a.cfg.Name, err)
	}
	telemetry.SequenceEmulatedRoundTripsTotal.With(a.cfg.Name, "success").Inc()
	a.served.Add(1)
	return v, nil
}

func (a *EmulatedAllocator) Stats() Stats {
	return Stats{
		Name:       a.cfg.Name,
		Mode:       TableEmulated,
		FetchSize:  1,
		RoundTrips: a.roundTrips.Load(),
		Served:     a.served.Load(),
	}
}
