package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/maxpert/bitseq/admin"
	"github.com/maxpert/bitseq/cfg"
	bitseqgrpc "github.com/maxpert/bitseq/grpc"
	"github.com/maxpert/bitseq/telemetry"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("node_id", cfg.Config.NodeID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("bitseq - batched bit-reversed sequence allocator")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	bitseqgrpc.RegisterZstdCompressor()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Phase 1: storage and backends
	node, err := openNode(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
		return
	}
	defer node.Close()

	// Phase 2: registry and sequence definitions
	if err := node.bootstrapSequences(); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap sequences")
		return
	}

	// Phase 3: schema synthesis
	if err := node.applySchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply schema")
		return
	}

	// Phase 4: serve range RPC, admin API and metrics on one port
	mux := http.NewServeMux()
	admin.RegisterRoutes(mux, admin.NewAdminHandlers(node.registry, node.inspector, node.entities, node.batcher))

	server, err := bitseqgrpc.NewServer(bitseqgrpc.ServerConfig{
		Address:        cfg.Config.Server.BindAddress,
		Port:           cfg.Config.Server.Port,
		Source:         node.store,
		HTTPHandler:    mux,
		MetricsHandler: telemetry.GetMetricsHandler(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
		return
	}
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
		return
	}
	defer server.Stop()

	log.Info().
		Uint64("node_id", cfg.Config.NodeID).
		Int("port", cfg.Config.Server.Port).
		Str("backend", string(cfg.Config.Sequences.Backend)).
		Bool("native_enabled", node.registry.NativeEnabled()).
		Str("data_dir", cfg.Config.DataDir).
		Msg("bitseq is operational")

	<-ctx.Done()
	log.Info().Msg("Shutting down")
}
