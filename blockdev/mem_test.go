// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockdev

import (
	"bytes"
	"sync"
	"testing"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/stretchr/testify/require"
)

func TestMem(t *testing.T) {
	defer leaktest.AfterTest(t)()
	d := NewMem(512, 64)
	require.Equal(t, 512, d.BlockSize())
	require.EqualValues(t, 64, d.NumBlocks())

	// Unwritten blocks read as zeroes and are not materialized.
	p := make([]byte, 512)
	for i := range p {
		p[i] = 0xff
	}
	require.NoError(t, d.ReadBlock(13, p))
	require.Equal(t, make([]byte, 512), p)
	require.Equal(t, 0, d.Materialized())

	for i := range p {
		p[i] = 0x42
	}
	require.NoError(t, d.WriteBlock(13, p))
	require.Equal(t, 1, d.Materialized())

	got := make([]byte, 512)
	require.NoError(t, d.ReadBlock(13, got))
	require.Equal(t, p, got)

	// Writes land on the device's copy, not the caller's buffer.
	p[0] = 0x43
	require.NoError(t, d.ReadBlock(13, got))
	require.EqualValues(t, 0x42, got[0])

	// Rewriting an existing block does not materialize a second copy.
	require.NoError(t, d.WriteBlock(13, p))
	require.Equal(t, 1, d.Materialized())

	require.NoError(t, d.Sync())
	require.NoError(t, d.Close())
	require.ErrorIs(t, d.ReadBlock(13, got), ErrClosed)
	require.ErrorIs(t, d.WriteBlock(13, p), ErrClosed)
	require.ErrorIs(t, d.Sync(), ErrClosed)
	require.ErrorIs(t, d.Close(), ErrClosed)
}

func TestMemOutOfRange(t *testing.T) {
	defer leaktest.AfterTest(t)()
	d := NewMem(512, 8)
	p := make([]byte, 512)
	require.ErrorContains(t, d.ReadBlock(8, p), "out of range")
	require.ErrorContains(t, d.WriteBlock(1000, p), "out of range")
	require.NoError(t, d.Close())
}

func TestMemBufferSizePanics(t *testing.T) {
	defer leaktest.AfterTest(t)()
	d := NewMem(512, 8)
	require.Panics(t, func() { _ = d.ReadBlock(0, make([]byte, 100)) })
	require.Panics(t, func() { _ = d.WriteBlock(0, make([]byte, 1024)) })
	require.NoError(t, d.Close())
}

func TestMemConcurrent(t *testing.T) {
	defer leaktest.AfterTest(t)()
	const numGoroutines = 8
	const numBlocks = 32
	d := NewMem(512, numBlocks)

	// Goroutine g owns blocks where blockNum%numGoroutines == g, so the
	// final contents are deterministic.
	var wg sync.WaitGroup
	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			p := make([]byte, 512)
			for round := 0; round < 20; round++ {
				for n := g; n < numBlocks; n += numGoroutines {
					for i := range p {
						p[i] = byte(n)
					}
					if err := d.WriteBlock(BlockNum(n), p); err != nil {
						t.Errorf("write block %d: %v", n, err)
						return
					}
				}
			}
		}(g)
	}
	wg.Wait()

	p := make([]byte, 512)
	for n := 0; n < numBlocks; n++ {
		require.NoError(t, d.ReadBlock(BlockNum(n), p))
		require.Equal(t, bytes.Repeat([]byte{byte(n)}, 512), p)
	}
	require.Equal(t, numBlocks, d.Materialized())
	require.NoError(t, d.Close())
}

func TestMemInvalidGeometry(t *testing.T) {
	require.Panics(t, func() { NewMem(0, 8) })
	require.Panics(t, func() { NewMem(512, 0) })
	require.Panics(t, func() { NewMem(-1, 8) })
}
