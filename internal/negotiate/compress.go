// ABOUTME: gzip and zstd codecs used to precompute compressed response bodies
// ABOUTME: A single zstd encoder is shared across calls through EncodeAll

package negotiate

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compressor encodes bodies with the supported encodings.
// It is safe for concurrent use.
type Compressor struct {
	gzipLevel int
	zstd      *zstd.Encoder
}

// NewCompressor creates a Compressor.
// zstdLevel is a zstd numeric level (1-22) mapped to the nearest encoder speed.
func NewCompressor(gzipLevel, zstdLevel int) (*Compressor, error) {
	if gzipLevel < gzip.HuffmanOnly || gzipLevel > gzip.BestCompression {
		return nil, fmt.Errorf("invalid gzip level %d", gzipLevel)
	}
	if zstdLevel < 1 || zstdLevel > 22 {
		return nil, fmt.Errorf("invalid zstd level %d", zstdLevel)
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(zstdLevel)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}

	return &Compressor{gzipLevel: gzipLevel, zstd: enc}, nil
}

// Compress encodes body with enc. Identity returns body unchanged.
func (c *Compressor) Compress(enc Encoding, body []byte) ([]byte, error) {
	switch enc {
	case Identity:
		return body, nil
	case Zstd:
		return c.zstd.EncodeAll(body, make([]byte, 0, len(body)/2)), nil
	case Gzip:
		var buf bytes.Buffer
		zw, err := gzip.NewWriterLevel(&buf, c.gzipLevel)
		if err != nil {
			return nil, fmt.Errorf("creating gzip writer: %w", err)
		}
		if _, err := zw.Write(body); err != nil {
			return nil, fmt.Errorf("gzip write: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip close: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", enc)
	}
}
