package id

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/maxpert/bitseq/sequence"
)

// DefaultSequenceName is shared by entities that declare no sequence of their own.
const DefaultSequenceName = "bitseq_sequence"

// Parameter keys accepted by Bind.
const (
	ParamSequenceName = "sequence_name"
	ParamFetchSize    = "fetch_size"
	ParamInitialValue = "initial_value"
	ParamExcludeRange = "exclude_range"
	ParamEmulation    = "emulation"
)

// Generator provides primary key values for one entity.
type Generator interface {
	NextID(ctx context.Context) (int64, error)
}

var _ Generator = (*SequenceGenerator)(nil)

// Params are the generator parameters declared on an entity.
type Params map[string]string

// SequenceGenerator draws IDs from a registry sequence.
// Thread-safe; the registry owns all state.
type SequenceGenerator struct {
	registry *sequence.Registry
	entity   string
	name     string
}

// Bind configures the sequence described by params on registry and returns a
// generator for entity. A nil or empty params binds the default sequence.
func Bind(registry *sequence.Registry, entity string, params Params) (*SequenceGenerator, error) {
	cfg, err := ParseParams(params)
	if err != nil {
		return nil, fmt.Errorf("entity %s: %w", entity, err)
	}
	if err := registry.Configure(cfg); err != nil {
		return nil, fmt.Errorf("entity %s: %w", entity, err)
	}
	return &SequenceGenerator{registry: registry, entity: entity, name: cfg.Name}, nil
}

// NextID returns the next identifier for the entity.
func (g *SequenceGenerator) NextID(ctx context.Context) (int64, error) {
	return g.registry.Next(ctx, g.name)
}

// Entity returns the bound entity name.
func (g *SequenceGenerator) Entity() string { return g.entity }

// SequenceName returns the sequence the entity draws from.
func (g *SequenceGenerator) SequenceName() string { return g.name }

// ParseParams converts entity parameters to a sequence definition.
func ParseParams(params Params) (sequence.Config, error) {
	cfg := sequence.Config{
		Name:      DefaultSequenceName,
		FetchSize: sequence.DefaultFetchSize,
	}
	if len(params) == 0 {
		return cfg, nil
	}

	for key := range params {
		switch key {
		case ParamSequenceName, ParamFetchSize, ParamInitialValue, ParamExcludeRange, ParamEmulation:
		default:
			return cfg, fmt.Errorf("unknown generator parameter %q", key)
		}
	}

	name := strings.TrimSpace(params[ParamSequenceName])
	if name == "" {
		return cfg, fmt.Errorf("%s is required", ParamSequenceName)
	}
	cfg.Name = name

	if v, ok := params[ParamFetchSize]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", ParamFetchSize, err)
		}
		cfg.FetchSize = n
	}

	if v, ok := params[ParamInitialValue]; ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", ParamInitialValue, err)
		}
		cfg.StartingCounter = n
	}

	if v, ok := params[ParamExcludeRange]; ok {
		r, err := ParseRange(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", ParamExcludeRange, err)
		}
		cfg.Exclusion = &r
	}

	mode, err := sequence.ParseEmulationMode(params[ParamEmulation])
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", ParamEmulation, err)
	}
	cfg.Emulation = mode
	return cfg, nil
}

// ParseRange parses "[min,max]".
func ParseRange(s string) (sequence.Range, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return sequence.Range{}, fmt.Errorf("range %q must look like [min,max]", s)
	}
	parts := strings.Split(s[1:len(s)-1], ",")
	if len(parts) != 2 {
		return sequence.Range{}, fmt.Errorf("range %q must have two bounds", s)
	}
	lo, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return sequence.Range{}, fmt.Errorf("range %q: %w", s, err)
	}
	hi, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return sequence.Range{}, fmt.Errorf("range %q: %w", s, err)
	}
	return sequence.Range{Min: lo, Max: hi}, nil
}
