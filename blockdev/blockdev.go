// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package blockdev provides block-addressed storage devices: fixed-geometry
// stores that read and write one block at a time. It is the storage surface
// consumed by the bufcache package.
package blockdev

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// BlockNum addresses one block on a Device.
type BlockNum uint64

// String implements fmt.Stringer.
func (n BlockNum) String() string {
	return redact.StringWithoutMarkers(n)
}

// SafeFormat implements redact.SafeFormatter.
func (n BlockNum) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%d", redact.SafeUint(uint64(n)))
}

// Device is a fixed-geometry block store. Reads and writes transfer exactly
// one block and are synchronous: they return only once the operation has
// completed. Implementations must be safe for concurrent use by multiple
// goroutines, though concurrent operations on the same block have no
// ordering guarantee.
type Device interface {
	// BlockSize returns the size of every block on the device, in bytes.
	BlockSize() int
	// NumBlocks returns the number of addressable blocks.
	NumBlocks() uint64
	// ReadBlock reads block blockNum into p. len(p) must equal BlockSize.
	ReadBlock(blockNum BlockNum, p []byte) error
	// WriteBlock writes p to block blockNum. len(p) must equal BlockSize.
	WriteBlock(blockNum BlockNum, p []byte) error
	// Sync durably persists all completed writes.
	Sync() error
	// Close releases the device's resources. The device must not be used
	// afterwards.
	Close() error
}

// ErrCorruption is a marker to indicate that data read from the device isn't
// in the expected format: a checksum or image record failed validation. Use
// errors.Is to test for it.
var ErrCorruption = errors.New("blockdev: corruption")

// MarkCorruptionError marks the given error as a corruption error.
func MarkCorruptionError(err error) error {
	if errors.Is(err, ErrCorruption) {
		return err
	}
	return errors.Mark(err, ErrCorruption)
}

// CorruptionErrorf formats according to a format specifier and returns the
// string as an error value that is marked as a corruption error.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// ErrClosed is returned by operations on a closed device.
var ErrClosed = errors.New("blockdev: device is closed")

// checkBlock validates a block operation's arguments against a device's
// geometry. A buffer of the wrong size is a programming error and panics; an
// out-of-range block number is reported as an error.
func checkBlock(d Device, blockNum BlockNum, p []byte) error {
	if len(p) != d.BlockSize() {
		panic(errors.AssertionFailedf("blockdev: buffer is %d bytes, device block size is %d",
			len(p), d.BlockSize()))
	}
	if uint64(blockNum) >= d.NumBlocks() {
		return errors.Newf("blockdev: block %s out of range [0, %d)",
			blockNum, errors.Safe(d.NumBlocks()))
	}
	return nil
}
