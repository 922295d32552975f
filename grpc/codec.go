package grpc

import (
	"fmt"

	"github.com/maxpert/bitseq/encoding"
	grpcencoding "google.golang.org/grpc/encoding"
)

// codecName is the content subtype of every bitseq RPC ("application/grpc+msgpack").
const codecName = "msgpack"

// msgpackCodec carries plain Go structs over gRPC, so the service needs no
// generated protobuf types.
type msgpackCodec struct{}

func init() {
	grpcencoding.RegisterCodec(msgpackCodec{})
}

func (msgpackCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := encoding.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal %T: %w", v, err)
	}
	return data, nil
}

func (msgpackCodec) Unmarshal(data []byte, v interface{}) error {
	if err := encoding.Unmarshal(data, v); err != nil {
		return fmt.Errorf("msgpack unmarshal %T: %w", v, err)
	}
	return nil
}

func (msgpackCodec) Name() string {
	return codecName
}
