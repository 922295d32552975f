package grpc

import (
	"context"

	"github.com/maxpert/bitseq/cfg"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	// SecretHeader is the metadata key carrying the shared secret
	SecretHeader = "x-bitseq-secret"
)

// UnaryServerInterceptor rejects calls that do not present the configured secret
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if err := validateSecret(ctx); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of UnaryServerInterceptor
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := validateSecret(ss.Context()); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func validateSecret(ctx context.Context) error {
	if !cfg.IsAuthEnabled() {
		return nil
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}

	secrets := md.Get(SecretHeader)
	if len(secrets) == 0 {
		return status.Error(codes.Unauthenticated, "missing secret")
	}

	if secrets[0] != cfg.GetSecret() {
		return status.Error(codes.Unauthenticated, "invalid secret")
	}

	return nil
}

// UnaryClientInterceptorWithSecret attaches secret to every outgoing call, empty attaches nothing
func UnaryClientInterceptorWithSecret(secret string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if secret != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, SecretHeader, secret)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
