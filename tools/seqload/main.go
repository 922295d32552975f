package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "load":
		runLoad(args)
	case "verify":
		runVerify(args)
	case "version":
		fmt.Printf("seqload version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`seqload - bit-reversed sequence load tool

Usage:
  seqload <command> [options]

Commands:
  load      Insert rows keyed by sequence IDs
  verify    Check the IDs of a loaded table for duplicates and spread
  version   Print version
  help      Show this help

Load Options:
  --server        bitseq node host:port (default: none, use --store)
  --secret        Shared secret for the node
  --store         Local Pebble store path when no server is given (default: ./seqload-store)
  --sequence      Sequence name (default: seqload_seq)
  --fetch-size    Values per round trip (default: 100)
  --start         Starting counter (default: 1)
  --driver        Target driver: sqlite3|mysql (default: sqlite3)
  --dsn           Target DSN (default: seqload.db)
  --table         Table name (default: seqload)
  --records       Number of rows to insert (default: 10000)
  --threads       Number of concurrent threads (default: 10)
  --batch-size    Inserts per transaction (default: 50)
  --create-table  Create table before loading (default: true)
  --drop-existing Drop existing table before creating (default: false)

Verify Options:
  --driver        Target driver: sqlite3|mysql (default: sqlite3)
  --dsn           Target DSN (default: seqload.db)
  --table         Table name (default: seqload)
  --buckets       Distribution buckets, power of two (default: 16)

Examples:
  seqload load --store=/tmp/seq --records=100000 --threads=8
  seqload load --server=127.0.0.1:8080 --driver=mysql --dsn='root@tcp(127.0.0.1:3306)/bench'
  seqload verify --dsn=seqload.db --buckets=32`)
}

func targetFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Driver, "driver", "sqlite3", "Target driver (sqlite3|mysql)")
	fs.StringVar(&cfg.DSN, "dsn", "seqload.db", "Target DSN")
	fs.StringVar(&cfg.Table, "table", "seqload", "Table name")
	fs.IntVar(&cfg.Buckets, "buckets", 16, "Distribution buckets (power of two)")
}

func runLoad(args []string) {
	cfg := &Config{}
	fs := flag.NewFlagSet("load", flag.ExitOnError)

	var timeLimit time.Duration
	fs.DurationVar(&timeLimit, "time-limit", 0, "Maximum time to run (e.g., 30s, 1m)")
	fs.StringVar(&cfg.Server, "server", "", "bitseq node host:port")
	fs.StringVar(&cfg.Secret, "secret", "", "Shared secret for the node")
	fs.StringVar(&cfg.Store, "store", "./seqload-store", "Local Pebble store path")
	fs.StringVar(&cfg.Sequence, "sequence", "seqload_seq", "Sequence name")
	fs.IntVar(&cfg.FetchSize, "fetch-size", 100, "Values per round trip")
	fs.Int64Var(&cfg.Start, "start", 1, "Starting counter")
	fs.IntVar(&cfg.Records, "records", 10000, "Number of rows to insert")
	fs.IntVar(&cfg.Threads, "threads", 10, "Number of concurrent threads")
	fs.IntVar(&cfg.BatchSize, "batch-size", 50, "Inserts per transaction")
	fs.BoolVar(&cfg.CreateTable, "create-table", true, "Create table before loading")
	fs.BoolVar(&cfg.DropExisting, "drop-existing", false, "Drop existing table before creating")
	targetFlags(fs, cfg)

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if timeLimit > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeLimit)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()
	handleInterrupt(cancel)

	if err := executeLoad(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Load failed: %v\n", err)
		os.Exit(1)
	}
}

func runVerify(args []string) {
	cfg := &Config{}
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	targetFlags(fs, cfg)

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.ValidateTarget(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handleInterrupt(cancel)

	if err := executeVerify(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Verify failed: %v\n", err)
		os.Exit(1)
	}
}

func handleInterrupt(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted, shutting down...")
		cancel()
	}()
}
