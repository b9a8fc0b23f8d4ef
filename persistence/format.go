package persistence

import (
	"errors"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	// MagicNumber identifies ivfgo snapshot files (ASCII: "IVF1").
	MagicNumber = 0x49564631
	// Version is the current snapshot format version (v1.0.0).
	Version = 0x00010000

	headerSize = 32
)

var (
	ErrInvalidMagic       = errors.New("invalid magic number")
	ErrInvalidVersion     = errors.New("unsupported version")
	ErrInvalidCompression = errors.New("unknown compression type")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
	ErrTruncated          = errors.New("truncated snapshot")
)

// Compression selects the codec applied to the snapshot payload.
type Compression uint8

const (
	// CompressionNone stores the payload raw.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast, moderate ratio).
	CompressionLZ4 Compression = 1
	// CompressionZstd uses zstd compression (slower, better ratio).
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// compressPayload compresses data with the requested codec. When the codec
// does not shrink the data it falls back to storing it raw, signalled by
// returning CompressionNone.
func compressPayload(data []byte, c Compression) ([]byte, Compression, error) {
	switch c {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(data))
		compressed := make([]byte, bound)
		n, err := lz4.CompressBlock(data, compressed, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 || n >= len(data) {
			return data, CompressionNone, nil
		}
		return compressed[:n], CompressionLZ4, nil
	case CompressionZstd:
		enc := getZstdEncoder()
		defer putZstdEncoder(enc)

		compressed := enc.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return data, CompressionNone, nil
		}
		return compressed, CompressionZstd, nil
	default:
		return nil, 0, fmt.Errorf("%w: %d", ErrInvalidCompression, uint8(c))
	}
}

// decompressPayload reverses compressPayload. uncompressedLen is taken from
// the header and must match the decoded size exactly.
func decompressPayload(data []byte, c Compression, uncompressedLen int) ([]byte, error) {
	switch c {
	case CompressionNone:
		if len(data) != uncompressedLen {
			return nil, ErrTruncated
		}
		return data, nil
	case CompressionLZ4:
		out := make([]byte, uncompressedLen)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != uncompressedLen {
			return nil, ErrTruncated
		}
		return out, nil
	case CompressionZstd:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)

		out, err := dec.DecodeAll(data, make([]byte, 0, uncompressedLen))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != uncompressedLen {
			return nil, ErrTruncated
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidCompression, uint8(c))
	}
}

// checksum computes the CRC32 (IEEE) of the stored payload bytes.
func checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
