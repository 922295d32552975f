package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maxpert/bitseq/db"
)

// Worker allocates IDs and inserts them in batched transactions.
type Worker struct {
	id      int
	source  *Source
	batcher *db.StatementBatcher
	table   string
	stats   *Stats
	batch   int
}

func NewWorker(id int, source *Source, target *Target, table string, stats *Stats, batchSize int) *Worker {
	return &Worker{
		id:      id,
		source:  source,
		batcher: db.NewStatementBatcher(db.SQLOpener{DB: target.DB()}, batchSize),
		table:   table,
		stats:   stats,
		batch:   batchSize,
	}
}

// RunLoad inserts count rows, batch rows per transaction.
func (w *Worker) RunLoad(ctx context.Context, count int, wg *sync.WaitGroup) {
	defer wg.Done()

	insert := fmt.Sprintf("INSERT INTO %s (id, worker, payload) VALUES (?, ?, ?)", w.table)
	for done := 0; done < count; {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n := w.batch
		if remaining := count - done; remaining < n {
			n = remaining
		}
		stmts := make([]db.Statement, 0, n)
		for i := 0; i < n; i++ {
			start := time.Now()
			id, err := w.source.Next(ctx)
			if err != nil {
				w.stats.RecordAllocError()
				continue
			}
			w.stats.RecordAlloc(time.Since(start))
			stmts = append(stmts, db.Statement{
				SQL:  insert,
				Args: []any{id, w.id, fmt.Sprintf("w%d-%d", w.id, done+i)},
			})
		}
		done += n

		if len(stmts) == 0 {
			continue
		}
		if err := w.executeBatch(ctx, stmts); err != nil {
			w.stats.RecordTxError(len(stmts))
			continue
		}
		w.stats.RecordTx(len(stmts))
	}
}

// executeBatch executes the statements within one transaction.
func (w *Worker) executeBatch(ctx context.Context, stmts []db.Statement) error {
	b, err := w.batcher.Begin(ctx)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if err := b.Add(ctx, stmt); err != nil {
			b.Rollback(ctx)
			return err
		}
	}
	_, err = b.Commit(ctx)
	return err
}

// executeLoad runs the load phase.
func executeLoad(ctx context.Context, cfg *Config) error {
	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║            Seqload Load Phase                        ║")
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println()

	if cfg.Server != "" {
		fmt.Printf("Server:      %s\n", cfg.Server)
	} else {
		fmt.Printf("Store:       %s\n", cfg.Store)
	}
	fmt.Printf("Sequence:    %s (fetch size %d)\n", cfg.Sequence, cfg.FetchSize)
	fmt.Printf("Target:      %s %s\n", cfg.Driver, cfg.Table)
	fmt.Printf("Records:     %d\n", cfg.Records)
	fmt.Printf("Threads:     %d\n", cfg.Threads)
	fmt.Printf("BatchSize:   %d\n", cfg.BatchSize)
	fmt.Println()

	source, err := OpenSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open sequence source: %w", err)
	}
	defer source.Close()

	target, err := OpenTarget(cfg.Driver, cfg.DSN, cfg.Threads)
	if err != nil {
		return err
	}
	defer target.Close()

	if cfg.CreateTable {
		if err := target.CreateTable(ctx, cfg.Table, cfg.DropExisting); err != nil {
			return err
		}
		fmt.Println("Table ready")
	}

	if existing, err := target.GetRowCount(ctx, cfg.Table); err == nil {
		fmt.Printf("Existing rows: %d\n", existing)
	}

	stats := NewStats()
	recordsPerWorker := cfg.Records / cfg.Threads
	remainder := cfg.Records % cfg.Threads

	var wg sync.WaitGroup
	start := time.Now()

	reporterCtx, stopReporter := context.WithCancel(ctx)
	go reportProgress(reporterCtx, stats)

	for i := 0; i < cfg.Threads; i++ {
		count := recordsPerWorker
		if i == cfg.Threads-1 {
			count += remainder
		}
		wg.Add(1)
		go NewWorker(i, source, target, cfg.Table, stats, cfg.BatchSize).RunLoad(ctx, count, &wg)
	}

	wg.Wait()
	stopReporter()
	elapsed := time.Since(start)

	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println("                    LOAD COMPLETE                      ")
	fmt.Println("═══════════════════════════════════════════════════════")
	stats.PrintFinal(elapsed, source.Stats())

	if errs := stats.TotalErrors(); errs > 0 {
		return fmt.Errorf("%d inserts failed", errs)
	}
	return nil
}
