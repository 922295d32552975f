package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// RefillBuckets for sequence refill round trips (one network exchange)
	RefillBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

	// FlushSizeBuckets for number of statements per batched flush
	FlushSizeBuckets = []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}
)

// Allocator Metrics
var (
	// SequenceRefillsTotal counts refill round trips by sequence and result (success, failed)
	SequenceRefillsTotal CounterVec = noopCounterVec{}

	// SequenceRefillSeconds measures refill round-trip latency
	SequenceRefillSeconds Histogram = NoopStat{}

	// SequenceValuesServedTotal counts IDs handed to callers by sequence
	SequenceValuesServedTotal CounterVec = noopCounterVec{}

	// SequenceValuesDiscardedTotal counts raw counters dropped because they fell in the skip range
	SequenceValuesDiscardedTotal CounterVec = noopCounterVec{}

	// SequenceEmulatedRoundTripsTotal counts table-emulated allocations by sequence and result
	SequenceEmulatedRoundTripsTotal CounterVec = noopCounterVec{}

	// SequenceCachesActive tracks the number of live per-sequence caches
	SequenceCachesActive Gauge = NoopStat{}

	// SequenceAdvanceRequestsTotal counts range requests served by the RPC server
	SequenceAdvanceRequestsTotal CounterVec = noopCounterVec{}
)

// Statement Batching Metrics
var (
	// BatchFlushesTotal counts batched flushes by result
	BatchFlushesTotal CounterVec = noopCounterVec{}

	// BatchFlushSize measures statements per flush
	BatchFlushSize Histogram = NoopStat{}

	// DDLStatementsTotal counts emitted DDL statements by kind (sequence, table)
	DDLStatementsTotal CounterVec = noopCounterVec{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after the registry exists.
func InitMetrics() {
	SequenceRefillsTotal = NewCounterVec(
		"sequence_refills_total",
		"Sequence cache refill round trips by result",
		[]string{"sequence", "result"},
	)
	SequenceRefillSeconds = NewHistogramWithBuckets(
		"sequence_refill_seconds",
		"Latency of a single sequence refill round trip",
		RefillBuckets,
	)
	SequenceValuesServedTotal = NewCounterVec(
		"sequence_values_served_total",
		"Identifiers handed out by sequence",
		[]string{"sequence"},
	)
	SequenceValuesDiscardedTotal = NewCounterVec(
		"sequence_values_discarded_total",
		"Raw counters dropped because they fell inside the skip range",
		[]string{"sequence"},
	)
	SequenceEmulatedRoundTripsTotal = NewCounterVec(
		"sequence_emulated_round_trips_total",
		"Table-emulated sequence round trips by result",
		[]string{"sequence", "result"},
	)
	SequenceCachesActive = NewGauge(
		"sequence_caches_active",
		"Number of live per-sequence allocators",
	)
	SequenceAdvanceRequestsTotal = NewCounterVec(
		"sequence_advance_requests_total",
		"Range requests served over RPC by result",
		[]string{"result"},
	)
	BatchFlushesTotal = NewCounterVec(
		"batch_flushes_total",
		"Batched statement flushes by result",
		[]string{"result"},
	)
	BatchFlushSize = NewHistogramWithBuckets(
		"batch_flush_size",
		"Statements executed per batched flush",
		FlushSizeBuckets,
	)
	DDLStatementsTotal = NewCounterVec(
		"ddl_statements_total",
		"DDL statements emitted by kind",
		[]string{"kind"},
	)
}
