package main

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/bitseq/sequence"
)

// Stats tracks load statistics using atomic operations.
type Stats struct {
	inserts   uint64
	errors    uint64
	txCount   uint64
	txErrors  uint64
	allocErrs uint64

	// Allocation latency (microseconds)
	mu        sync.Mutex
	latencies []int64
}

func NewStats() *Stats {
	return &Stats{
		latencies: make([]int64, 0, 100000),
	}
}

// RecordAlloc records the latency of one ID allocation.
func (s *Stats) RecordAlloc(latency time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, latency.Microseconds())
	s.mu.Unlock()
}

func (s *Stats) RecordAllocError() {
	atomic.AddUint64(&s.allocErrs, 1)
}

// RecordTx records a committed transaction carrying n inserts.
func (s *Stats) RecordTx(n int) {
	atomic.AddUint64(&s.txCount, 1)
	atomic.AddUint64(&s.inserts, uint64(n))
}

// RecordTxError records a failed transaction carrying n inserts.
func (s *Stats) RecordTxError(n int) {
	atomic.AddUint64(&s.txErrors, 1)
	atomic.AddUint64(&s.errors, uint64(n))
}

func (s *Stats) Inserts() uint64 {
	return atomic.LoadUint64(&s.inserts)
}

func (s *Stats) TotalErrors() uint64 {
	return atomic.LoadUint64(&s.errors) + atomic.LoadUint64(&s.allocErrs)
}

// GetLatencyPercentiles returns p50, p90, p99 in microseconds.
func (s *Stats) GetLatencyPercentiles() (p50, p90, p99 int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.latencies) == 0 {
		return 0, 0, 0
	}

	sorted := make([]int64, len(s.latencies))
	copy(sorted, s.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	return sorted[n*50/100], sorted[n*90/100], sorted[n*99/100]
}

// Snapshot is a copy of the current counters.
type Snapshot struct {
	Inserts  uint64
	Errors   uint64
	TxCount  uint64
	TxErrors uint64
}

func (s *Stats) GetSnapshot() Snapshot {
	return Snapshot{
		Inserts:  atomic.LoadUint64(&s.inserts),
		Errors:   s.TotalErrors(),
		TxCount:  atomic.LoadUint64(&s.txCount),
		TxErrors: atomic.LoadUint64(&s.txErrors),
	}
}

// PrintFinal prints final statistics along with the allocator counters.
func (s *Stats) PrintFinal(elapsed time.Duration, seq sequence.Stats) {
	inserts := s.Inserts()
	throughput := float64(inserts) / elapsed.Seconds()

	fmt.Println()
	fmt.Printf("Total time:    %.2fs\n", elapsed.Seconds())
	fmt.Printf("Throughput:    %.2f inserts/sec\n", throughput)
	fmt.Println()

	fmt.Printf("Inserts:       %d\n", inserts)
	fmt.Printf("Transactions:  %d\n", atomic.LoadUint64(&s.txCount))
	if errs := s.TotalErrors(); errs > 0 {
		fmt.Printf("Errors:        %d (alloc %d, tx %d)\n", errs,
			atomic.LoadUint64(&s.allocErrs), atomic.LoadUint64(&s.txErrors))
	}
	fmt.Println()

	fmt.Println("Sequence:")
	fmt.Printf("  Name:        %s\n", seq.Name)
	fmt.Printf("  Fetch size:  %d\n", seq.FetchSize)
	fmt.Printf("  Round trips: %d\n", seq.RoundTrips)
	fmt.Printf("  Served:      %d\n", seq.Served)
	fmt.Printf("  Discarded:   %d\n", seq.Discarded)
	fmt.Println()

	p50, p90, p99 := s.GetLatencyPercentiles()
	fmt.Println("Allocation latency (microseconds):")
	fmt.Printf("  P50:   %d\n", p50)
	fmt.Printf("  P90:   %d\n", p90)
	fmt.Printf("  P99:   %d\n", p99)
}
