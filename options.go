// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bufcache

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultNumBufs is the default size of the buffer pool.
	DefaultNumBufs = 64
	// DefaultNumBuckets is the default number of lock stripes. A prime
	// spreads block numbers evenly regardless of access stride.
	DefaultNumBuckets = 13
	// DefaultBlockSize is the default buffer size in bytes.
	DefaultBlockSize = 4096

	// minBlockSize is the smallest supported block size. Nothing in the
	// cache itself needs the floor; it exists to catch byte-vs-block
	// confusion in callers.
	minBlockSize = 512
)

// Options holds the parameters and dependencies of a Cache. The zero value,
// after EnsureDefaults, is a usable configuration.
type Options struct {
	// NumBufs is the number of fixed-size buffers in the pool. It bounds how
	// many blocks can be referenced at once; an acquisition made while every
	// buffer is referenced is fatal, so size the pool for the worst-case
	// number of concurrently held blocks. The default is 64.
	NumBufs int

	// NumBuckets is the number of lock stripes the buffers are distributed
	// over. The default is 13.
	NumBuckets int

	// BlockSize is the size of each buffer in bytes. Every device attached
	// to the cache must report the same block size. Must be a power of two
	// and at least 512. The default is 4096.
	BlockSize int

	// Logger is used to report fatal conditions, of which exhausting the
	// pool is the only one. The default logs to the Go stdlib logger.
	Logger Logger

	// ReadLatency and WriteLatency, if non-nil, observe the duration in
	// nanoseconds of each device read issued by Load and each device write
	// issued by Store.
	ReadLatency  prometheus.Histogram
	WriteLatency prometheus.Histogram
}

// EnsureDefaults ensures that the default values for all options are set if
// a valid value was not already specified. Returns the updated options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.NumBufs <= 0 {
		o.NumBufs = DefaultNumBufs
	}
	if o.NumBuckets <= 0 {
		o.NumBuckets = DefaultNumBuckets
	}
	if o.BlockSize <= 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.Logger == nil {
		o.Logger = DefaultLogger
	}
	return o
}

// Validate verifies that the options are internally consistent.
func (o *Options) Validate() error {
	if o.NumBufs < 1 {
		return errors.Newf("bufcache: NumBufs (%d) must be at least 1", o.NumBufs)
	}
	if int64(o.NumBufs) > math.MaxInt32 {
		return errors.Newf("bufcache: NumBufs (%d) exceeds the maximum %d", o.NumBufs, int64(math.MaxInt32))
	}
	if o.NumBuckets < 1 {
		return errors.Newf("bufcache: NumBuckets (%d) must be at least 1", o.NumBuckets)
	}
	if int64(o.NumBuckets) > math.MaxInt32 {
		return errors.Newf("bufcache: NumBuckets (%d) exceeds the maximum %d", o.NumBuckets, int64(math.MaxInt32))
	}
	if o.BlockSize < minBlockSize {
		return errors.Newf("bufcache: BlockSize (%d) must be at least %d", o.BlockSize, minBlockSize)
	}
	if o.BlockSize&(o.BlockSize-1) != 0 {
		return errors.Newf("bufcache: BlockSize (%d) must be a power of two", o.BlockSize)
	}
	return nil
}
