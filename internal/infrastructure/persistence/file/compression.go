package file

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the algorithm used for the cache payload. Tags
// are stored in the file header; changing them breaks existing files.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

var errIncompressible = errors.New("data is incompressible")

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses a compression name. The empty string is zstd.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd", "":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression: %q", name)
	}
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("file: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("file: zstd decoder initialization failed: " + err.Error())
	}
}

func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil

	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 || n >= len(data) {
			return nil, errIncompressible
		}
		return dst[:n], nil

	case CompressionZstd:
		out := zstdEncoder.EncodeAll(data, nil)
		if len(out) >= len(data) {
			return nil, errIncompressible
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported compression: %d", c)
	}
}

func decompress(data []byte, c Compression, size int) ([]byte, error) {
	switch c {
	case CompressionNone:
		if len(data) != size {
			return nil, fmt.Errorf("payload size %d does not match header %d", len(data), size)
		}
		return data, nil

	case CompressionLZ4:
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(data, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
		}
		return dst, nil

	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported compression: %d", c)
	}
}
