// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockdev

import (
	"fmt"
	"os"
	"sync"

	"github.com/cockroachdb/bufcache/internal/invariants"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/swiss"
)

func fibonacciHash(k *BlockNum, seed uintptr) uintptr {
	const m = 11400714819323198485
	h := uint64(seed)
	h ^= uint64(*k) * m
	return uintptr(h)
}

var memMapOptions = []swiss.Option[BlockNum, []byte]{
	swiss.WithHash[BlockNum, []byte](fibonacciHash),
}

// Mem is an in-memory Device. Blocks are materialized on first write; blocks
// never written read as zeroes. Safe for concurrent use.
type Mem struct {
	blockSize int
	numBlocks uint64

	mu struct {
		sync.RWMutex
		blocks swiss.Map[BlockNum, []byte]
		closed bool
	}
}

var _ Device = (*Mem)(nil)

// NewMem returns an in-memory device with the given geometry.
func NewMem(blockSize int, numBlocks uint64) *Mem {
	if blockSize <= 0 || numBlocks == 0 {
		panic(errors.AssertionFailedf("blockdev: invalid geometry %d blocks of %d bytes",
			numBlocks, blockSize))
	}
	d := &Mem{blockSize: blockSize, numBlocks: numBlocks}
	d.mu.blocks.Init(16, memMapOptions...)

	// Note: this is a no-op if invariants are disabled or race is enabled.
	invariants.SetFinalizer(d, func(obj interface{}) {
		d := obj.(*Mem)
		if !d.mu.closed {
			fmt.Fprintf(os.Stderr, "%p: in-memory device not closed\n", d)
			os.Exit(1)
		}
	})
	return d
}

// BlockSize implements Device.
func (d *Mem) BlockSize() int { return d.blockSize }

// NumBlocks implements Device.
func (d *Mem) NumBlocks() uint64 { return d.numBlocks }

// ReadBlock implements Device.
func (d *Mem) ReadBlock(blockNum BlockNum, p []byte) error {
	if err := checkBlock(d, blockNum, p); err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.mu.closed {
		return errors.Wrapf(ErrClosed, "read block %s", blockNum)
	}
	if b, ok := d.mu.blocks.Get(blockNum); ok {
		copy(p, b)
		return nil
	}
	clear(p)
	return nil
}

// WriteBlock implements Device.
func (d *Mem) WriteBlock(blockNum BlockNum, p []byte) error {
	if err := checkBlock(d, blockNum, p); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mu.closed {
		return errors.Wrapf(ErrClosed, "write block %s", blockNum)
	}
	if b, ok := d.mu.blocks.Get(blockNum); ok {
		copy(b, p)
		return nil
	}
	b := make([]byte, d.blockSize)
	copy(b, p)
	d.mu.blocks.Put(blockNum, b)
	return nil
}

// Sync implements Device. It is a no-op for an in-memory device.
func (d *Mem) Sync() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.mu.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Device.
func (d *Mem) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mu.closed {
		return ErrClosed
	}
	d.mu.blocks.Close()
	d.mu.closed = true
	return nil
}

// Materialized returns the number of blocks that have been written at least
// once.
func (d *Mem) Materialized() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mu.blocks.Len()
}
