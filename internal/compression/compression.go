// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package compression provides the block compression algorithms used by
// device image files.
package compression

import "github.com/cockroachdb/errors"

// Algorithm identifies a compression algorithm. The zero value is
// NoCompression. Algorithm values are persisted in image files and must not
// be renumbered.
type Algorithm uint8

const (
	NoCompression Algorithm = iota
	Snappy
	MinLZ
	Zstd
	numAlgorithms
)

// String implements fmt.Stringer.
func (a Algorithm) String() string {
	switch a {
	case NoCompression:
		return "none"
	case Snappy:
		return "snappy"
	case MinLZ:
		return "minlz"
	case Zstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseAlgorithm parses the string representation produced by String.
func ParseAlgorithm(s string) (Algorithm, error) {
	for a := NoCompression; a < numAlgorithms; a++ {
		if a.String() == s {
			return a, nil
		}
	}
	return 0, errors.Newf("unknown compression algorithm %q", errors.Safe(s))
}

// Valid reports whether a names a known algorithm.
func (a Algorithm) Valid() bool {
	return a < numAlgorithms
}

// All enumerates the known algorithms.
func All() []Algorithm {
	return []Algorithm{NoCompression, Snappy, MinLZ, Zstd}
}

// Compressor is the interface implemented by the per-algorithm compressors.
// A Compressor is not safe for concurrent use.
type Compressor interface {
	// Compress compresses src, using dst as scratch space if it is large
	// enough. It returns the compressed payload.
	Compress(dst, src []byte) []byte
	// Close must be called when the compressor is no longer needed.
	Close()
}

// Decompressor is the interface implemented by the per-algorithm
// decompressors.
type Decompressor interface {
	// DecompressInto decompresses src into dst. dst must be exactly the
	// size of the decompressed payload.
	DecompressInto(dst, src []byte) error
	// DecompressedLen returns the size of the decompressed payload.
	DecompressedLen(b []byte) (decompressedLen int, err error)
	// Close must be called when the decompressor is no longer needed.
	Close()
}

// GetCompressor returns a Compressor for the given algorithm. Close must be
// called when the compressor is no longer needed.
func GetCompressor(a Algorithm) Compressor {
	switch a {
	case NoCompression:
		return noopCompressor{}
	case Snappy:
		return snappyCompressor{}
	case MinLZ:
		return minlzCompressor{}
	case Zstd:
		return getZstdCompressor()
	default:
		panic(errors.AssertionFailedf("unknown compression algorithm %d", a))
	}
}

// GetDecompressor returns a Decompressor for the given algorithm. Close must
// be called when the decompressor is no longer needed.
func GetDecompressor(a Algorithm) Decompressor {
	switch a {
	case NoCompression:
		return noopDecompressor{}
	case Snappy:
		return snappyDecompressor{}
	case MinLZ:
		return minlzDecompressor{}
	case Zstd:
		return getZstdDecompressor()
	default:
		panic(errors.AssertionFailedf("unknown compression algorithm %d", a))
	}
}
