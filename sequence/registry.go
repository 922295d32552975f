package sequence

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
	"github.com/maxpert/bitseq/telemetry"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

// FetchSizeOverride replaces the fetch size of every sequence whose name
// matches Pattern (glob syntax).
type FetchSizeOverride struct {
	Pattern   string
	FetchSize int
}

// Options configures a Registry at construction time.
type Options struct {
	// NativeEnabled is the initial value of the native switch.
	NativeEnabled bool
	// Fetcher serves native sequences. Required if any sequence resolves to Native.
	Fetcher Fetcher
	// Counter serves table-emulated sequences. Required if any sequence resolves to TableEmulated.
	Counter Counter
	// FetchTimeout bounds each refill round trip, 0 disables the bound.
	FetchTimeout time.Duration
	Overrides    []FetchSizeOverride
}

// modeSnapshot is swapped atomically and never mutated.
type modeSnapshot struct {
	native bool
}

type compiledOverride struct {
	pattern   glob.Glob
	fetchSize int
}

// Registry maps sequence names to their configuration and owns one
// allocator per name. Allocators are created on first use.
type Registry struct {
	configs    *xsync.MapOf[string, Config]
	allocators *xsync.MapOf[string, Allocator]
	mode       atomic.Pointer[modeSnapshot]
	closed     atomic.Bool

	fetcher      Fetcher
	counter      Counter
	fetchTimeout time.Duration
	overrides    []compiledOverride
}

// NewRegistry creates a registry. It fails only on malformed override patterns.
func NewRegistry(opts Options) (*Registry, error) {
	r := &Registry{
		configs:      xsync.NewMapOf[string, Config](),
		allocators:   xsync.NewMapOf[string, Allocator](),
		fetcher:      opts.Fetcher,
		counter:      opts.Counter,
		fetchTimeout: opts.FetchTimeout,
	}
	r.mode.Store(&modeSnapshot{native: opts.NativeEnabled})

	for _, o := range opts.Overrides {
		if o.FetchSize < 1 {
			return nil, fmt.Errorf("override %q: fetch size must be >= 1", o.Pattern)
		}
		g, err := glob.Compile(o.Pattern)
		if err != nil {
			return nil, fmt.Errorf("override %q: %w", o.Pattern, err)
		}
		r.overrides = append(r.overrides, compiledOverride{pattern: g, fetchSize: o.FetchSize})
	}
	return r, nil
}

// Configure registers a sequence. Registering the same definition twice is a
// no-op; a different definition under a known name fails with DUPLICATE_SEQUENCE.
func (r *Registry) Configure(cfg Config) error {
	if r.closed.Load() {
		return newError(ReasonRegistryClosed, cfg.Name, nil)
	}

	cfg = r.applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return newError(ReasonInvalidConfig, cfg.Name, err)
	}

	existing, loaded := r.configs.LoadOrStore(cfg.Name, cfg)
	if loaded && !existing.Equal(cfg) {
		return newError(ReasonDuplicateSequence, cfg.Name,
			fmt.Errorf("already configured with fetch size %d, start %d, mode %s",
				existing.FetchSize, existing.StartingCounter, existing.Emulation))
	}

	if !loaded {
		log.Debug().
			Str("sequence", cfg.Name).
			Int("fetch_size", cfg.FetchSize).
			Int64("start_counter", cfg.StartingCounter).
			Str("emulation", cfg.Emulation.String()).
			Msg("Sequence configured")
	}
	return nil
}

func (r *Registry) applyOverrides(cfg Config) Config {
	for _, o := range r.overrides {
		if o.pattern.Match(cfg.Name) {
			cfg.FetchSize = o.fetchSize
			return cfg
		}
	}
	return cfg
}

// Lookup returns the registered definition of name.
func (r *Registry) Lookup(name string) (Config, bool) {
	return r.configs.Load(name)
}

// Names returns every configured name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.configs.Size())
	r.configs.Range(func(name string, _ Config) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// SetNativeEnabled flips the process-wide native switch. Allocators that
// already exist keep their mode.
func (r *Registry) SetNativeEnabled(enabled bool) {
	r.mode.Store(&modeSnapshot{native: enabled})
	log.Info().Bool("native_enabled", enabled).Msg("Native sequence switch changed")
}

// NativeEnabled reports the current switch position.
func (r *Registry) NativeEnabled() bool {
	return r.mode.Load().native
}

// resolve picks the mode a new allocator for cfg would get.
func (r *Registry) resolve(cfg Config) EmulationMode {
	if cfg.Emulation != EmulationDefault {
		return cfg.Emulation
	}
	if r.mode.Load().native {
		return Native
	}
	return TableEmulated
}

// AllocatorFor returns the allocator of name, creating it on first use.
// Concurrent first calls agree on a single allocator.
func (r *Registry) AllocatorFor(name string) (Allocator, error) {
	if r.closed.Load() {
		return nil, newError(ReasonRegistryClosed, name, nil)
	}
	if a, ok := r.allocators.Load(name); ok {
		return a, nil
	}

	cfg, ok := r.configs.Load(name)
	if !ok {
		return nil, newError(ReasonSequenceUnknown, name, nil)
	}

	mode := r.resolve(cfg)
	switch {
	case mode == Native && r.fetcher == nil:
		return nil, newError(ReasonInvalidConfig, name, fmt.Errorf("no native fetcher configured"))
	case mode == TableEmulated && r.counter == nil:
		return nil, newError(ReasonInvalidConfig, name, fmt.Errorf("no emulation counter configured"))
	}

	a, loaded := r.allocators.LoadOrCompute(name, func() Allocator {
		if mode == TableEmulated {
			return NewEmulatedAllocator(cfg, r.counter)
		}
		return NewBatchAllocator(cfg, r.fetcher, r.fetchTimeout)
	})
	if !loaded {
		telemetry.SequenceCachesActive.Inc()
		log.Debug().Str("sequence", name).Str("mode", a.Mode().String()).Msg("Allocator created")
	}
	// Close may have cleared the map between the first check and the compute.
	if r.closed.Load() {
		if _, ok := r.allocators.LoadAndDelete(name); ok {
			telemetry.SequenceCachesActive.Dec()
		}
		return nil, newError(ReasonRegistryClosed, name, nil)
	}
	return a, nil
}

// Next allocates one value from name.
func (r *Registry) Next(ctx context.Context, name string) (int64, error) {
	a, err := r.AllocatorFor(name)
	if err != nil {
		return 0, err
	}
	return a.Next(ctx)
}

// Descriptors projects every configured sequence onto its DDL descriptor,
// using the mode of its allocator if one exists and the current switch otherwise.
func (r *Registry) Descriptors() Descriptors {
	var d Descriptors
	r.configs.Range(func(name string, cfg Config) bool {
		mode := r.resolve(cfg)
		if a, ok := r.allocators.Load(name); ok {
			mode = a.Mode()
		}
		seq, tbl, native := Describe(cfg, mode)
		if native {
			d.Sequences = append(d.Sequences, seq)
		} else {
			d.Tables = append(d.Tables, tbl)
		}
		return true
	})
	d.sort()
	return d
}

// Stats returns the stats of every live allocator, sorted by name.
func (r *Registry) Stats() []Stats {
	var out []Stats
	r.allocators.Range(func(_ string, a Allocator) bool {
		out = append(out, a.Stats())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close drops every allocator. Values still pending in caches are abandoned,
// which leaves gaps but never duplicates.
func (r *Registry) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	n := r.allocators.Size()
	r.allocators.Clear()
	telemetry.SequenceCachesActive.Sub(float64(n))
	log.Info().Int("allocators", n).Msg("Sequence registry closed")
}
