// Package persistence implements a versioned binary snapshot format for
// collections. A snapshot captures the flushed rows, scalar documents,
// schema and (when present) the built index state of a collection so it
// can be written to any io.Writer and restored later.
//
// The on-disk layout is a fixed header followed by a single payload block:
//
//	[Magic uint32][Version uint32][Compression uint8][pad 3]
//	[UncompressedLen uint64][CompressedLen uint64][Checksum uint32]
//	[payload ...]
//
// The checksum is a CRC32 (IEEE) over the stored payload bytes, so
// corruption is detected before any decompression or decoding happens.
// The payload can be stored raw, LZ4 block compressed or zstd compressed.
package persistence
