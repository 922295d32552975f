// Package sequence allocates primary-key values from bit-reversed sequences.
//
// A Registry holds one Config per sequence name and lazily creates one
// Allocator per name. Native allocators prefetch FetchSize raw counters in a
// single round trip, bit-reverse them and hand them out from memory. Emulated
// allocators read-modify-write a single-row counter table on every call.
package sequence

import (
	"fmt"
	"strings"
)

// DefaultFetchSize is used when a definition does not set one.
const DefaultFetchSize = 50

// EmulationMode selects the backend that serves a sequence.
type EmulationMode int

const (
	// EmulationDefault follows the registry's native switch.
	EmulationDefault EmulationMode = iota
	// Native uses the backend's sequence primitive with batching and bit reversal.
	Native
	// TableEmulated uses a single-row counter table, one round trip per value.
	TableEmulated
)

func (m EmulationMode) String() string {
	switch m {
	case Native:
		return "native"
	case TableEmulated:
		return "table"
	default:
		return "default"
	}
}

// MarshalText renders the mode by name.
func (m EmulationMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *EmulationMode) UnmarshalText(text []byte) error {
	v, err := ParseEmulationMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseEmulationMode accepts "", "default", "native" and "table".
func ParseEmulationMode(s string) (EmulationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return EmulationDefault, nil
	case "native":
		return Native, nil
	case "table", "table_emulated":
		return TableEmulated, nil
	}
	return EmulationDefault, fmt.Errorf("unknown emulation mode %q", s)
}

// Range is an inclusive interval of raw counters.
type Range struct {
	Min int64
	Max int64
}

// Contains reports whether v lies in [Min, Max].
func (r Range) Contains(v int64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.Min, r.Max)
}

// Config describes one sequence. It is immutable once registered.
type Config struct {
	Name            string
	FetchSize       int
	StartingCounter int64
	// Exclusion holds raw counters the sequence must never emit; nil means none.
	Exclusion *Range
	Emulation EmulationMode
}

// Start returns the first raw counter the sequence emits. Values below 1
// fall back to the backend default of 1.
func (c Config) Start() int64 {
	if c.StartingCounter < 1 {
		return 1
	}
	return c.StartingCounter
}

// Excludes reports whether raw falls inside the exclusion range.
func (c Config) Excludes(raw int64) bool {
	return c.Exclusion != nil && c.Exclusion.Contains(raw)
}

// Validate checks the invariants of a definition.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.FetchSize < 1 {
		return fmt.Errorf("fetch size must be >= 1, got %d", c.FetchSize)
	}
	if c.StartingCounter < 0 {
		return fmt.Errorf("starting counter must be >= 0, got %d", c.StartingCounter)
	}
	if r := c.Exclusion; r != nil {
		if r.Min < 0 || r.Max < 0 {
			return fmt.Errorf("exclusion range %s must be non-negative", r)
		}
		if r.Min > r.Max {
			return fmt.Errorf("exclusion range %s has min > max", r)
		}
	}
	switch c.Emulation {
	case EmulationDefault, Native, TableEmulated:
	default:
		return fmt.Errorf("unknown emulation mode %d", c.Emulation)
	}
	return nil
}

// Equal compares two definitions by value.
func (c Config) Equal(o Config) bool {
	if c.Name != o.Name || c.FetchSize != o.FetchSize ||
		c.StartingCounter != o.StartingCounter || c.Emulation != o.Emulation {
		return false
	}
	if (c.Exclusion == nil) != (o.Exclusion == nil) {
		return false
	}
	return c.Exclusion == nil || *c.Exclusion == *o.Exclusion
}
