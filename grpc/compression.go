package grpc

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/maxpert/bitseq/cfg"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const zstdName = "zstd"

// compressMinValues is the smallest Advance response sent compressed.
// Requests are a name and a count and always go out plain.
const compressMinValues = 256

// zstdCompressor encodes with pooled encoders and decodes whole messages with
// one shared decoder; DecodeAll is safe for concurrent use.
type zstdCompressor struct {
	level    zstd.EncoderLevel
	encoders sync.Pool
	decoder  *zstd.Decoder
}

// RegisterZstdCompressor registers zstd with grpc's encoding registry at the
// configured level. Registration is process-wide; call it after cfg.Load and
// before NewServer or Dial. Peers can always decode zstd, the level only
// decides whether large Advance responses are sent compressed.
func RegisterZstdCompressor() {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxMessageSize))
	if err != nil {
		log.Error().Err(err).Msg("Unable to create zstd decoder, gRPC compression unavailable")
		return
	}

	level := zstdLevel(compressionLevel())
	encoding.RegisterCompressor(&zstdCompressor{level: level, decoder: dec})
	log.Debug().
		Str("zstd_level", level.String()).
		Int("min_values", compressMinValues).
		Msg("Registered zstd gRPC compressor")
}

func (c *zstdCompressor) Name() string { return zstdName }

func (c *zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	enc, _ := c.encoders.Get().(*zstd.Encoder)
	if enc == nil {
		var err error
		enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(c.level), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, err
		}
	}
	enc.Reset(w)
	return &releasingEncoder{Encoder: enc, pool: &c.encoders}, nil
}

func (c *zstdCompressor) Decompress(r io.Reader) (io.Reader, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	out, err := c.decoder.DecodeAll(src, nil)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(out), nil
}

// releasingEncoder hands its encoder back to the pool on Close.
type releasingEncoder struct {
	*zstd.Encoder
	pool *sync.Pool
}

func (e *releasingEncoder) Close() error {
	err := e.Encoder.Close()
	e.pool.Put(e.Encoder)
	return err
}

// compressAdvance marks the Advance response of n values for zstd when it is
// large enough and compression is on. A peer that did not advertise zstd gets
// the response uncompressed.
func compressAdvance(ctx context.Context, name string, n int) {
	if !shouldCompress(n) {
		return
	}
	if err := grpc.SetSendCompressor(ctx, zstdName); err != nil {
		log.Debug().Err(err).Str("sequence", name).Msg("Sending Advance response uncompressed")
	}
}

func shouldCompress(values int) bool {
	return compressionLevel() > 0 && values >= compressMinValues
}

func compressionLevel() int {
	if cfg.Config == nil {
		return 1
	}
	return cfg.Config.Server.Compression
}

// zstdLevel maps compression_level 1-4 to fastest..best.
func zstdLevel(level int) zstd.EncoderLevel {
	switch level {
	case 2:
		return zstd.SpeedDefault
	case 3:
		return zstd.SpeedBetterCompression
	case 4:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedFastest
	}
}
