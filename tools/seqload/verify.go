package main

import (
	"context"
	"fmt"
	"math/bits"
	"strings"
)

// maxSkew is the largest tolerated ratio between the fullest bucket and an
// even split.
const maxSkew = 1.5

// Report summarizes the ids found in a table.
type Report struct {
	Count       int
	Duplicates  int
	NonPositive int
	Min         int64
	Max         int64
	Buckets     []int
	Skew        float64
}

// OK reports whether the ids are unique, positive and evenly spread.
func (r Report) OK() bool {
	return r.Duplicates == 0 && r.NonPositive == 0 && r.Skew <= maxSkew
}

// analyzeIDs checks uniqueness and positivity, and buckets the ids by their
// top bits. Sequential ids land in one bucket, bit-reversed ids spread out.
func analyzeIDs(ids []int64, buckets int) Report {
	r := Report{Count: len(ids), Buckets: make([]int, buckets)}
	if len(ids) == 0 {
		return r
	}

	shift := 63 - bits.TrailingZeros(uint(buckets))
	seen := make(map[int64]struct{}, len(ids))
	r.Min, r.Max = ids[0], ids[0]

	for _, id := range ids {
		if _, dup := seen[id]; dup {
			r.Duplicates++
			continue
		}
		seen[id] = struct{}{}

		if id <= 0 {
			r.NonPositive++
			continue
		}
		if id < r.Min {
			r.Min = id
		}
		if id > r.Max {
			r.Max = id
		}
		r.Buckets[uint64(id)>>shift]++
	}

	fullest := 0
	for _, n := range r.Buckets {
		if n > fullest {
			fullest = n
		}
	}
	even := float64(len(seen)-r.NonPositive) / float64(buckets)
	if even > 0 {
		r.Skew = float64(fullest) / even
	}
	return r
}

func (r Report) Print() {
	fmt.Printf("Rows:          %d\n", r.Count)
	fmt.Printf("Duplicates:    %d\n", r.Duplicates)
	fmt.Printf("Non-positive:  %d\n", r.NonPositive)
	fmt.Printf("Min:           %d\n", r.Min)
	fmt.Printf("Max:           %d\n", r.Max)
	fmt.Println()

	fmt.Println("Distribution by top bits:")
	fullest := 0
	for _, n := range r.Buckets {
		if n > fullest {
			fullest = n
		}
	}
	for i, n := range r.Buckets {
		width := 0
		if fullest > 0 {
			width = n * 40 / fullest
		}
		fmt.Printf("  %2d: %8d %s\n", i, n, strings.Repeat("#", width))
	}
	fmt.Printf("Skew:          %.2f (max %.2f)\n", r.Skew, maxSkew)
}

// executeVerify reads every id from the table and checks it.
func executeVerify(ctx context.Context, cfg *Config) error {
	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║            Seqload Verification                      ║")
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println()

	target, err := OpenTarget(cfg.Driver, cfg.DSN, 1)
	if err != nil {
		return err
	}
	defer target.Close()

	ids, err := target.ReadIDs(ctx, cfg.Table)
	if err != nil {
		return fmt.Errorf("failed to read ids: %w", err)
	}

	report := analyzeIDs(ids, cfg.Buckets)
	report.Print()
	fmt.Println()

	if !report.OK() {
		fmt.Println("VERIFICATION FAILED")
		return fmt.Errorf("%d duplicates, %d non-positive, skew %.2f", report.Duplicates, report.NonPositive, report.Skew)
	}
	fmt.Println("VERIFICATION PASSED")
	return nil
}
