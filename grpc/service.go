package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName     = "bitseq.SequenceService"
	advanceMethod   = "/" + serviceName + "/Advance"
	describeMethod  = "/" + serviceName + "/Describe"
	createMethod    = "/" + serviceName + "/Create"
	serviceMetadata = "bitseq/sequence_service"
)

// AdvanceRequest asks the server to advance Name by Count raw counters.
type AdvanceRequest struct {
	Name  string `msgpack:"name"`
	Count int    `msgpack:"count"`
}

// AdvanceResponse holds the reserved raw counters in allocation order.
type AdvanceResponse struct {
	Values []uint64 `msgpack:"values"`
}

type DescribeRequest struct{}

// SequenceInfo describes one server-side sequence.
type SequenceInfo struct {
	Name         string `msgpack:"name"`
	Kind         string `msgpack:"kind"`
	StartCounter int64  `msgpack:"start_counter"`
	HasSkipRange bool   `msgpack:"has_skip_range"`
	SkipMin      int64  `msgpack:"skip_min"`
	SkipMax      int64  `msgpack:"skip_max"`
}

type DescribeResponse struct {
	Sequences []SequenceInfo `msgpack:"sequences"`
}

// CreateRequest defines a sequence on the server. Re-creating an identical
// definition succeeds.
type CreateRequest struct {
	Sequence SequenceInfo `msgpack:"sequence"`
}

type CreateResponse struct{}

// SequenceServiceServer is the server API of the range RPC.
type SequenceServiceServer interface {
	Advance(context.Context, *AdvanceRequest) (*AdvanceResponse, error)
	Describe(context.Context, *DescribeRequest) (*DescribeResponse, error)
	Create(context.Context, *CreateRequest) (*CreateResponse, error)
}

// RegisterSequenceServiceServer registers srv on s.
func RegisterSequenceServiceServer(s grpc.ServiceRegistrar, srv SequenceServiceServer) {
	s.RegisterService(&sequenceServiceDesc, srv)
}

var sequenceServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SequenceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Advance", Handler: advanceHandler},
		{MethodName: "Describe", Handler: describeHandler},
		{MethodName: "Create", Handler: createHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: serviceMetadata,
}

func advanceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AdvanceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SequenceServiceServer).Advance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: advanceMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SequenceServiceServer).Advance(ctx, req.(*AdvanceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func describeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DescribeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SequenceServiceServer).Describe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: describeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SequenceServiceServer).Describe(ctx, req.(*DescribeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func createHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CreateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SequenceServiceServer).Create(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: createMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SequenceServiceServer).Create(ctx, req.(*CreateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// SequenceServiceClient is the client API of the range RPC.
type SequenceServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSequenceServiceClient(cc grpc.ClientConnInterface) *SequenceServiceClient {
	return &SequenceServiceClient{cc: cc}
}

func (c *SequenceServiceClient) Advance(ctx context.Context, in *AdvanceRequest, opts ...grpc.CallOption) (*AdvanceResponse, error) {
	out := new(AdvanceResponse)
	if err := c.cc.Invoke(ctx, advanceMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SequenceServiceClient) Describe(ctx context.Context, in *DescribeRequest, opts ...grpc.CallOption) (*DescribeResponse, error) {
	out := new(DescribeResponse)
	if err := c.cc.Invoke(ctx, describeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SequenceServiceClient) Create(ctx context.Context, in *CreateRequest, opts ...grpc.CallOption) (*CreateResponse, error) {
	out := new(CreateResponse)
	if err := c.cc.Invoke(ctx, createMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
