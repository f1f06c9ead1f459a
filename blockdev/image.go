// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockdev

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/bufcache/internal/compression"
	"github.com/cockroachdb/errors"
)

// An image is a compact serialization of a device's contents:
//
//	header:  magic (8 bytes), version, block size, block count
//	records: block number, algorithm, payload length, payload, xxhash64
//
// All integers are uvarints except the checksum, which is 8 bytes
// little-endian over the stored payload. Records hold only blocks that are
// not all zeroes, in strictly ascending block order; the record stream is
// terminated by the end of the input. A block is stored compressed only when
// that makes it smaller, so a payload never exceeds the block size.
var imageMagic = [8]byte{'b', 'u', 'f', 'i', 'm', 'a', 'g', 'e'}

const imageVersion = 1

// ImageStats summarizes an image that was written or restored.
type ImageStats struct {
	// Blocks is the number of blocks recorded in the image.
	Blocks uint64
	// DataBytes is the total size of the recorded blocks, uncompressed.
	DataBytes uint64
	// ImageBytes is the size of the image itself, header included.
	ImageBytes uint64
}

// WriteImage serializes the contents of dev to w, compressing each block with
// the given algorithm. Blocks that are all zeroes are not recorded.
func WriteImage(w io.Writer, dev Device, algo compression.Algorithm) (ImageStats, error) {
	if !algo.Valid() {
		return ImageStats{}, errors.AssertionFailedf("blockdev: unknown compression algorithm %d", algo)
	}
	bw := bufio.NewWriter(w)
	blockSize := dev.BlockSize()

	var scratch []byte
	scratch = append(scratch, imageMagic[:]...)
	scratch = binary.AppendUvarint(scratch, imageVersion)
	scratch = binary.AppendUvarint(scratch, uint64(blockSize))
	scratch = binary.AppendUvarint(scratch, dev.NumBlocks())
	if _, err := bw.Write(scratch); err != nil {
		return ImageStats{}, errors.Wrap(err, "blockdev: write image header")
	}
	stats := ImageStats{ImageBytes: uint64(len(scratch))}

	c := compression.GetCompressor(algo)
	defer c.Close()

	block := make([]byte, blockSize)
	zero := make([]byte, blockSize)
	var compressed []byte
	for n := uint64(0); n < dev.NumBlocks(); n++ {
		if err := dev.ReadBlock(BlockNum(n), block); err != nil {
			return ImageStats{}, err
		}
		if bytes.Equal(block, zero) {
			continue
		}
		payload, recAlgo := block, compression.NoCompression
		if algo != compression.NoCompression {
			compressed = c.Compress(compressed, block)
			if len(compressed) < blockSize {
				payload, recAlgo = compressed, algo
			}
		}

		scratch = binary.AppendUvarint(scratch[:0], n)
		scratch = append(scratch, byte(recAlgo))
		scratch = binary.AppendUvarint(scratch, uint64(len(payload)))
		if _, err := bw.Write(scratch); err != nil {
			return ImageStats{}, errors.Wrapf(err, "blockdev: write image record for block %s", BlockNum(n))
		}
		if _, err := bw.Write(payload); err != nil {
			return ImageStats{}, errors.Wrapf(err, "blockdev: write image record for block %s", BlockNum(n))
		}
		var sum [8]byte
		binary.LittleEndian.PutUint64(sum[:], xxhash.Sum64(payload))
		if _, err := bw.Write(sum[:]); err != nil {
			return ImageStats{}, errors.Wrapf(err, "blockdev: write image record for block %s", BlockNum(n))
		}
		stats.Blocks++
		stats.DataBytes += uint64(blockSize)
		stats.ImageBytes += uint64(len(scratch) + len(payload) + len(sum))
	}
	if err := bw.Flush(); err != nil {
		return ImageStats{}, errors.Wrap(err, "blockdev: write image")
	}
	return stats, nil
}

// ReadImage restores an image from r onto dev. The image's block size must
// match the device's, and the image must not address blocks beyond the
// device's last. Blocks absent from the image are left untouched; restoring
// onto a zeroed device reproduces the imaged contents exactly.
func ReadImage(r io.Reader, dev Device) (ImageStats, error) {
	cr := &countingReader{r: bufio.NewReader(r)}
	blockSize := dev.BlockSize()

	var magic [8]byte
	if _, err := io.ReadFull(cr, magic[:]); err != nil {
		return ImageStats{}, errors.Wrap(err, "blockdev: read image header")
	}
	if magic != imageMagic {
		return ImageStats{}, CorruptionErrorf("blockdev: not an image file (magic %x)", errors.Safe(magic))
	}
	version, err := binary.ReadUvarint(cr)
	if err != nil {
		return ImageStats{}, CorruptionErrorf("blockdev: image header: %v", err)
	}
	if version != imageVersion {
		return ImageStats{}, errors.Newf("blockdev: unsupported image version %d", errors.Safe(version))
	}
	imageBlockSize, err := binary.ReadUvarint(cr)
	if err != nil {
		return ImageStats{}, CorruptionErrorf("blockdev: image header: %v", err)
	}
	if imageBlockSize != uint64(blockSize) {
		return ImageStats{}, errors.Newf("blockdev: image block size %d, device block size %d",
			errors.Safe(imageBlockSize), errors.Safe(blockSize))
	}
	imageNumBlocks, err := binary.ReadUvarint(cr)
	if err != nil {
		return ImageStats{}, CorruptionErrorf("blockdev: image header: %v", err)
	}
	if imageNumBlocks > dev.NumBlocks() {
		return ImageStats{}, errors.Newf("blockdev: image has %d blocks, device has %d",
			errors.Safe(imageNumBlocks), errors.Safe(dev.NumBlocks()))
	}

	var stats ImageStats
	block := make([]byte, blockSize)
	var payload []byte
	prev := int64(-1)
	for {
		n, err := cr.readUvarint()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ImageStats{}, CorruptionErrorf("blockdev: image record: %v", err)
		}
		if int64(n) <= prev {
			return ImageStats{}, CorruptionErrorf("blockdev: image records out of order (block %s after %s)",
				BlockNum(n), BlockNum(prev))
		}
		prev = int64(n)
		if n >= imageNumBlocks {
			return ImageStats{}, CorruptionErrorf("blockdev: image record for block %s beyond image end %d",
				BlockNum(n), errors.Safe(imageNumBlocks))
		}
		rec, err := cr.ReadByte()
		if err != nil {
			return ImageStats{}, CorruptionErrorf("blockdev: image record for block %s: %v", BlockNum(n), err)
		}
		algo := compression.Algorithm(rec)
		if !algo.Valid() {
			return ImageStats{}, CorruptionErrorf("blockdev: image record for block %s has unknown algorithm %d",
				BlockNum(n), errors.Safe(rec))
		}
		payloadLen, err := binary.ReadUvarint(cr)
		if err != nil {
			return ImageStats{}, CorruptionErrorf("blockdev: image record for block %s: %v", BlockNum(n), err)
		}
		if payloadLen == 0 || payloadLen > uint64(blockSize) {
			return ImageStats{}, CorruptionErrorf("blockdev: image record for block %s has payload of %d bytes",
				BlockNum(n), errors.Safe(payloadLen))
		}
		if algo == compression.NoCompression && payloadLen != uint64(blockSize) {
			return ImageStats{}, CorruptionErrorf(
				"blockdev: image record for block %s is uncompressed but has payload of %d bytes",
				BlockNum(n), errors.Safe(payloadLen))
		}
		if uint64(cap(payload)) < payloadLen {
			payload = make([]byte, payloadLen)
		}
		payload = payload[:payloadLen]
		if _, err := io.ReadFull(cr, payload); err != nil {
			return ImageStats{}, CorruptionErrorf("blockdev: image record for block %s: %v", BlockNum(n), err)
		}
		var sum [8]byte
		if _, err := io.ReadFull(cr, sum[:]); err != nil {
			return ImageStats{}, CorruptionErrorf("blockdev: image record for block %s: %v", BlockNum(n), err)
		}
		if want, got := binary.LittleEndian.Uint64(sum[:]), xxhash.Sum64(payload); got != want {
			return ImageStats{}, CorruptionErrorf("blockdev: block %s checksum mismatch (got %x, want %x)",
				BlockNum(n), errors.Safe(got), errors.Safe(want))
		}

		if algo == compression.NoCompression {
			copy(block, payload)
		} else {
			d := compression.GetDecompressor(algo)
			decompressedLen, err := d.DecompressedLen(payload)
			if err == nil && decompressedLen != blockSize {
				err = errors.Newf("decompresses to %d bytes, block size is %d",
					errors.Safe(decompressedLen), errors.Safe(blockSize))
			}
			if err == nil {
				err = d.DecompressInto(block, payload)
			}
			d.Close()
			if err != nil {
				return ImageStats{}, CorruptionErrorf("blockdev: image record for block %s: %v", BlockNum(n), err)
			}
		}
		if err := dev.WriteBlock(BlockNum(n), block); err != nil {
			return ImageStats{}, err
		}
		stats.Blocks++
		stats.DataBytes += uint64(blockSize)
	}
	stats.ImageBytes = cr.n
	return stats, nil
}

// countingReader counts the bytes consumed from an underlying reader. It
// implements io.ByteReader so that uvarint decoding does not read ahead.
type countingReader struct {
	r *bufio.Reader
	n uint64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += uint64(n)
	return n, err
}

func (cr *countingReader) ReadByte() (byte, error) {
	b, err := cr.r.ReadByte()
	if err == nil {
		cr.n++
	}
	return b, err
}

// readUvarint decodes a uvarint. io.EOF is returned only at a clean record
// boundary; running out of input mid-varint is an unexpected EOF.
func (cr *countingReader) readUvarint() (uint64, error) {
	start := cr.n
	v, err := binary.ReadUvarint(cr)
	if err == io.EOF && cr.n != start {
		return 0, io.ErrUnexpectedEOF
	}
	return v, err
}
