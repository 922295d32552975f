// Package bitrev scatters monotonic counters across the positive int64 keyspace.
//
// A range-partitioned store splits its keyspace into contiguous ranges. Keys
// handed out by a plain counter all land at the tail of the last range, so every
// insert hits the same split. Reversing the counter's bits moves the fastest
// changing bit to the most significant position, and consecutive counters end
// up far apart.
package bitrev

import (
	"math"
	"math/bits"
)

// MaxRaw is the largest raw counter that Reverse accepts.
const MaxRaw = uint64(math.MaxInt64)

// InDomain reports whether raw can be reversed without losing information.
func InDomain(raw uint64) bool {
	return raw <= MaxRaw
}

// Reverse maps a raw counter in [0, MaxRaw] to a non-negative int64.
// The 63 low bits are reversed and the sign bit is always zero, which makes
// the mapping a bijection on the domain. Bit 63 of raw is discarded, callers
// must check InDomain first.
func Reverse(raw uint64) int64 {
	return int64(bits.Reverse64(raw) >> 1)
}

// Unreverse recovers the raw counter from a value produced by Reverse.
func Unreverse(v int64) uint64 {
	return bits.Reverse64(uint64(v)<<1) & MaxRaw
}
