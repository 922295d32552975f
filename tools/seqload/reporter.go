package main

import (
	"context"
	"fmt"
	"time"
)

// reportProgress prints real-time progress every second.
func reportProgress(ctx context.Context, stats *Stats) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var lastSnapshot Snapshot
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := stats.GetSnapshot()
			elapsed := time.Since(startTime)

			fmt.Printf("[%5.0fs] inserts/sec: %6d | tx/sec: %5d | total: %8d | errors: %4d | throughput: %.1f inserts/sec\n",
				elapsed.Seconds(),
				snapshot.Inserts-lastSnapshot.Inserts,
				snapshot.TxCount-lastSnapshot.TxCount,
				snapshot.Inserts,
				snapshot.Errors,
				float64(snapshot.Inserts)/elapsed.Seconds(),
			)

			lastSnapshot = snapshot
		}
	}
}
