// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build !cgo

package compression

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
)

// zstdLevel is the Zstandard compression level. Level 3 is the upstream
// default.
const zstdLevel = 3

type zstdCompressor struct{}

var _ Compressor = zstdCompressor{}

func getZstdCompressor() zstdCompressor {
	return zstdCompressor{}
}

func (zstdCompressor) Compress(compressedBuf, b []byte) []byte {
	if len(compressedBuf) < binary.MaxVarintLen64 {
		compressedBuf = append(compressedBuf, make([]byte, binary.MaxVarintLen64-len(compressedBuf))...)
	}
	varIntLen := binary.PutUvarint(compressedBuf, uint64(len(b)))
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(zstdLevel)))
	if err != nil {
		panic(err)
	}
	result := encoder.EncodeAll(b, compressedBuf[:varIntLen])
	if err := encoder.Close(); err != nil {
		panic(err)
	}
	return result
}

func (zstdCompressor) Close() {}

type zstdDecompressor struct{}

var _ Decompressor = zstdDecompressor{}

func getZstdDecompressor() zstdDecompressor {
	return zstdDecompressor{}
}

func (zstdDecompressor) DecompressInto(dst, src []byte) error {
	// The payload is prefixed with a varint encoding the length of the
	// decompressed block.
	_, prefixLen := binary.Uvarint(src)
	src = src[prefixLen:]
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return err
	}
	defer decoder.Close()
	result, err := decoder.DecodeAll(src, dst[:0])
	if err != nil {
		return err
	}
	if len(result) != len(dst) || (len(result) > 0 && &result[0] != &dst[0]) {
		return errors.Newf("decompressed into unexpected buffer: %p != %p",
			errors.Safe(result), errors.Safe(dst))
	}
	return nil
}

func (zstdDecompressor) DecompressedLen(b []byte) (decompressedLen int, err error) {
	decodedLenU64, varIntLen := binary.Uvarint(b)
	if varIntLen <= 0 {
		return 0, errors.Newf("compressed block has invalid length")
	}
	return int(decodedLenU64), nil
}

func (zstdDecompressor) Close() {}
