package grpc

import (
	"context"
	"errors"

	"github.com/maxpert/bitseq/db"
	"github.com/maxpert/bitseq/sequence"
	"github.com/maxpert/bitseq/telemetry"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// MaxAdvanceCount caps the counters reserved by one Advance call.
const MaxAdvanceCount = 10000

// RangeSource is the server-side sequence storage. *db.SequenceStore implements it.
type RangeSource interface {
	Create(d sequence.SequenceDescriptor) error
	Advance(ctx context.Context, name string, n int) ([]uint64, error)
	List() ([]sequence.SequenceDescriptor, error)
}

// SequenceServer serves counter ranges out of a RangeSource.
type SequenceServer struct {
	source RangeSource
}

var _ SequenceServiceServer = (*SequenceServer)(nil)

func NewSequenceServer(source RangeSource) *SequenceServer {
	return &SequenceServer{source: source}
}

// Advance reserves req.Count raw counters of req.Name.
func (s *SequenceServer) Advance(ctx context.Context, req *AdvanceRequest) (*AdvanceResponse, error) {
	if req.Name == "" {
		telemetry.SequenceAdvanceRequestsTotal.With("invalid").Inc()
		return nil, status.Error(codes.InvalidArgument, "sequence name is required")
	}
	if req.Count < 1 || req.Count > MaxAdvanceCount {
		telemetry.SequenceAdvanceRequestsTotal.With("invalid").Inc()
		return nil, status.Errorf(codes.InvalidArgument, "count must be in [1, %d], got %d", MaxAdvanceCount, req.Count)
	}

	values, err := s.source.Advance(ctx, req.Name, req.Count)
	if err != nil {
		telemetry.SequenceAdvanceRequestsTotal.With("failed").Inc()
		log.Debug().Err(err).Str("sequence", req.Name).Int("count", req.Count).Msg("Advance failed")
		return nil, toStatus(err)
	}

	telemetry.SequenceAdvanceRequestsTotal.With("success").Inc()
	compressAdvance(ctx, req.Name, len(values))
	return &AdvanceResponse{Values: values}, nil
}

// Describe lists every sequence the server holds.
func (s *SequenceServer) Describe(ctx context.Context, _ *DescribeRequest) (*DescribeResponse, error) {
	descs, err := s.source.List()
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &DescribeResponse{Sequences: make([]SequenceInfo, 0, len(descs))}
	for _, d := range descs {
		resp.Sequences = append(resp.Sequences, InfoOf(d))
	}
	return resp, nil
}

// Create defines req.Sequence on the server.
func (s *SequenceServer) Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	if req.Sequence.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "sequence name is required")
	}
	if err := s.source.Create(req.Sequence.Descriptor()); err != nil {
		return nil, toStatus(err)
	}
	log.Info().Str("sequence", req.Sequence.Name).Msg("Created sequence over RPC")
	return &CreateResponse{}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, db.ErrSequenceNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, db.ErrSequenceExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, db.ErrSequenceExhausted):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// InfoOf converts a descriptor to its wire form.
func InfoOf(d sequence.SequenceDescriptor) SequenceInfo {
	info := SequenceInfo{Name: d.Name, Kind: d.Kind, StartCounter: d.StartCounter}
	if d.SkipRange != nil {
		info.HasSkipRange = true
		info.SkipMin = d.SkipRange.Min
		info.SkipMax = d.SkipRange.Max
	}
	return info
}

// Descriptor converts the wire form back to a descriptor.
func (i SequenceInfo) Descriptor() sequence.SequenceDescriptor {
	d := sequence.SequenceDescriptor{Name: i.Name, Kind: i.Kind, StartCounter: i.StartCounter}
	if i.HasSkipRange {
		d.SkipRange = &sequence.Range{Min: i.SkipMin, Max: i.SkipMax}
	}
	return d
}
