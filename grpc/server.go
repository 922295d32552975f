package grpc

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

// maxMessageSize bounds a single RPC message; an Advance response of
// MaxAdvanceCount counters stays far below it.
const maxMessageSize = 4 * 1024 * 1024

// Server multiplexes the range RPC and the HTTP surface (admin, metrics,
// pprof) on one port.
type Server struct {
	address string
	port    int

	source         RangeSource
	httpHandler    http.Handler
	metricsHandler http.Handler

	server     *grpc.Server
	httpServer *http.Server
	listener   net.Listener
	mux        cmux.CMux

	mu      sync.Mutex
	stopped bool
}

// ServerConfig holds configuration for the server
type ServerConfig struct {
	Address string
	Port    int // 0 picks a free port
	Source  RangeSource

	// HTTPHandler is mounted at / on the HTTP side, nil serves only metrics and pprof.
	HTTPHandler    http.Handler
	MetricsHandler http.Handler
}

// NewServer creates a server; nothing listens until Start.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Source == nil {
		return nil, errors.New("server requires a range source")
	}
	return &Server{
		address:        config.Address,
		port:           config.Port,
		source:         config.Source,
		httpHandler:    config.HTTPHandler,
		metricsHandler: config.MetricsHandler,
	}, nil
}

// Start listens and serves in background goroutines.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.address, s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = listener
	s.server = grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMessageSize),
		grpc.MaxSendMsgSize(maxMessageSize),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    60 * time.Second,
			Timeout: 10 * time.Second,
		}),
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	)
	RegisterSequenceServiceServer(s.server, NewSequenceServer(s.source))

	log.Info().
		Str("address", listener.Addr().String()).
		Msg("Starting sequence server")

	s.mux = cmux.New(listener)
	httpListener := s.mux.Match(cmux.HTTP1Fast())
	grpcListener := s.mux.Match(cmux.Any())

	s.httpServer = &http.Server{
		Handler:           s.httpMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(httpListener); err != nil && !isClosedErr(err) {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	go func() {
		if err := s.server.Serve(grpcListener); err != nil && !isClosedErr(err) {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	go func() {
		if err := s.mux.Serve(); err != nil && !isClosedErr(err) {
			log.Error().Err(err).Msg("cmux failed")
		}
	}()

	return nil
}

func (s *Server) httpMux() http.Handler {
	httpMux := http.NewServeMux()

	httpMux.HandleFunc("/debug/pprof/", pprof.Index)
	httpMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	httpMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	httpMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	httpMux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	if s.metricsHandler != nil {
		httpMux.Handle("/metrics", s.metricsHandler)
		log.Info().Msg("Metrics endpoint enabled at /metrics")
	}
	if s.httpHandler != nil {
		httpMux.Handle("/", s.httpHandler)
	}
	return httpMux
}

// Addr returns the bound address, nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop drains in-flight RPCs and closes the listener. Safe to call twice.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.server == nil {
		return
	}
	s.stopped = true

	log.Info().Msg("Stopping sequence server")
	s.server.GracefulStop()
	if err := s.httpServer.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close HTTP server")
	}
	if err := s.listener.Close(); err != nil && !isClosedErr(err) {
		log.Warn().Err(err).Msg("Failed to close listener")
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, http.ErrServerClosed) ||
		errors.Is(err, grpc.ErrServerStopped) ||
		errors.Is(err, cmux.ErrListenerClosed)
}
