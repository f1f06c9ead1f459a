// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockdev

import (
	"encoding/binary"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

// File is a Device backed by a single flat file. Block i occupies bytes
// [i*BlockSize, (i+1)*BlockSize). With checksums enabled the data region is
// followed by a trailer holding one 8-byte little-endian xxhash64 per block,
// validated on every read.
//
// File performs no internal locking: reads and writes use positional I/O
// and distinct blocks never overlap. Callers are responsible for
// serializing accesses to the same block.
type File struct {
	f         *os.File
	path      string
	blockSize int
	numBlocks uint64
	checksums bool
}

var _ Device = (*File)(nil)

// FileOptions configures CreateFile and OpenFile.
type FileOptions struct {
	// Checksums maintains a per-block xxhash64 in a trailer region beyond
	// the data blocks. Reads validate the stored checksum and report
	// mismatches as errors marked with ErrCorruption.
	Checksums bool
}

// CreateFile creates (or truncates) path as a zero-filled device file of the
// given geometry.
func CreateFile(path string, blockSize int, numBlocks uint64, opts FileOptions) (*File, error) {
	if blockSize <= 0 || numBlocks == 0 {
		return nil, errors.Newf("blockdev: invalid geometry %d blocks of %d bytes",
			errors.Safe(numBlocks), errors.Safe(blockSize))
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	d := &File{
		f:         f,
		path:      path,
		blockSize: blockSize,
		numBlocks: numBlocks,
		checksums: opts.Checksums,
	}
	if err := f.Truncate(d.fileSize()); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "blockdev: create %q", path)
	}
	if d.checksums {
		if err := d.initChecksums(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return d, nil
}

// OpenFile opens an existing device file created by CreateFile. The geometry
// and checksum setting must match those the file was created with; the file
// size is validated against them.
func OpenFile(path string, blockSize int, numBlocks uint64, opts FileOptions) (*File, error) {
	if blockSize <= 0 || numBlocks == 0 {
		return nil, errors.Newf("blockdev: invalid geometry %d blocks of %d bytes",
			errors.Safe(numBlocks), errors.Safe(blockSize))
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	d := &File{
		f:         f,
		path:      path,
		blockSize: blockSize,
		numBlocks: numBlocks,
		checksums: opts.Checksums,
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "blockdev: open %q", path)
	}
	if stat.Size() != d.fileSize() {
		_ = f.Close()
		return nil, errors.Newf("blockdev: %q is %d bytes, geometry requires %d",
			path, errors.Safe(stat.Size()), errors.Safe(d.fileSize()))
	}
	return d, nil
}

// initChecksums seeds the checksum trailer with the hash of a zero block so
// that unwritten blocks validate.
func (d *File) initChecksums() error {
	zeroSum := xxhash.Sum64(make([]byte, d.blockSize))
	const chunkSums = 4096
	chunk := make([]byte, 0, chunkSums*8)
	for i := 0; i < chunkSums; i++ {
		chunk = binary.LittleEndian.AppendUint64(chunk, zeroSum)
	}
	for n := uint64(0); n < d.numBlocks; n += chunkSums {
		c := chunk
		if rem := d.numBlocks - n; rem < chunkSums {
			c = chunk[:rem*8]
		}
		if _, err := d.f.WriteAt(c, d.checksumOff(BlockNum(n))); err != nil {
			return errors.Wrapf(err, "blockdev: create %q", d.path)
		}
	}
	return nil
}

func (d *File) fileSize() int64 {
	size := int64(d.numBlocks) * int64(d.blockSize)
	if d.checksums {
		size += int64(d.numBlocks) * 8
	}
	return size
}

func (d *File) blockOff(blockNum BlockNum) int64 {
	return int64(blockNum) * int64(d.blockSize)
}

func (d *File) checksumOff(blockNum BlockNum) int64 {
	return int64(d.numBlocks)*int64(d.blockSize) + int64(blockNum)*8
}

// Path returns the path the device file was opened with.
func (d *File) Path() string { return d.path }

// BlockSize implements Device.
func (d *File) BlockSize() int { return d.blockSize }

// NumBlocks implements Device.
func (d *File) NumBlocks() uint64 { return d.numBlocks }

// ReadBlock implements Device.
func (d *File) ReadBlock(blockNum BlockNum, p []byte) error {
	if err := checkBlock(d, blockNum, p); err != nil {
		return err
	}
	if _, err := d.f.ReadAt(p, d.blockOff(blockNum)); err != nil {
		return errors.Wrapf(err, "blockdev: read block %s", blockNum)
	}
	if d.checksums {
		var buf [8]byte
		if _, err := d.f.ReadAt(buf[:], d.checksumOff(blockNum)); err != nil {
			return errors.Wrapf(err, "blockdev: read block %s checksum", blockNum)
		}
		want := binary.LittleEndian.Uint64(buf[:])
		if got := xxhash.Sum64(p); got != want {
			return CorruptionErrorf("blockdev: block %s checksum mismatch (got %x, want %x)",
				blockNum, errors.Safe(got), errors.Safe(want))
		}
	}
	return nil
}

// WriteBlock implements Device. The data write and the checksum write are
// not atomic; a crash between them is detected as corruption on the next
// read of the block.
func (d *File) WriteBlock(blockNum BlockNum, p []byte) error {
	if err := checkBlock(d, blockNum, p); err != nil {
		return err
	}
	if _, err := d.f.WriteAt(p, d.blockOff(blockNum)); err != nil {
		return errors.Wrapf(err, "blockdev: write block %s", blockNum)
	}
	if d.checksums {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], xxhash.Sum64(p))
		if _, err := d.f.WriteAt(buf[:], d.checksumOff(blockNum)); err != nil {
			return errors.Wrapf(err, "blockdev: write block %s checksum", blockNum)
		}
	}
	return nil
}

// Sync implements Device.
func (d *File) Sync() error {
	if err := fdatasync(d.f); err != nil {
		return errors.Wrapf(err, "blockdev: sync %q", d.path)
	}
	return nil
}

// Close implements Device.
func (d *File) Close() error {
	return d.f.Close()
}
