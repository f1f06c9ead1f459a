// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package errordev

import (
	"bytes"
	"testing"
	"time"

	"github.com/cockroachdb/bufcache/blockdev"
	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	defer leaktest.AfterTest(t)()
	mem := blockdev.NewMem(512, 16)
	d := Wrap(mem, OnKind(OpKindWrite, Always()))
	require.Equal(t, mem, d.Unwrap())
	require.Equal(t, 512, d.BlockSize())
	require.EqualValues(t, 16, d.NumBlocks())

	p := make([]byte, 512)
	require.NoError(t, d.ReadBlock(3, p))
	require.ErrorIs(t, d.WriteBlock(3, p), ErrInjected)
	// Sync is a write-kind operation.
	require.ErrorIs(t, d.Sync(), ErrInjected)
	require.NoError(t, d.Close())
}

func TestOnIndex(t *testing.T) {
	defer leaktest.AfterTest(t)()
	mem := blockdev.NewMem(512, 16)
	inj := OnIndex(2, Always())
	d := Wrap(mem, inj)

	p := make([]byte, 512)
	require.NoError(t, d.ReadBlock(0, p))
	require.NoError(t, d.ReadBlock(1, p))
	require.ErrorIs(t, d.ReadBlock(2, p), ErrInjected)
	// The injector fires once; later operations proceed.
	require.NoError(t, d.ReadBlock(3, p))

	inj.SetIndex(0)
	require.ErrorIs(t, d.WriteBlock(0, p), ErrInjected)
	require.NoError(t, d.Close())
}

func TestOnBlock(t *testing.T) {
	defer leaktest.AfterTest(t)()
	mem := blockdev.NewMem(512, 16)
	d := Wrap(mem, OnBlock(5, Always()))

	p := make([]byte, 512)
	require.NoError(t, d.ReadBlock(4, p))
	require.ErrorIs(t, d.ReadBlock(5, p), ErrInjected)
	require.ErrorIs(t, d.WriteBlock(5, p), ErrInjected)
	// Syncs pass block zero but are never block-targeted.
	require.NoError(t, d.Sync())
	require.NoError(t, d.ReadBlock(0, p))
	require.NoError(t, d.Close())
}

func TestAny(t *testing.T) {
	defer leaktest.AfterTest(t)()
	mem := blockdev.NewMem(512, 16)
	d := Wrap(mem, Any(
		OnBlock(5, Always()),
		OnKind(OpKindWrite, OnBlock(6, Always())),
	))

	p := make([]byte, 512)
	require.ErrorIs(t, d.ReadBlock(5, p), ErrInjected)
	require.NoError(t, d.ReadBlock(6, p))
	require.ErrorIs(t, d.WriteBlock(6, p), ErrInjected)
	require.NoError(t, d.WriteBlock(7, p))
	require.NoError(t, d.Close())
}

func TestInjectedOpsDoNotReachDevice(t *testing.T) {
	defer leaktest.AfterTest(t)()
	mem := blockdev.NewMem(512, 16)
	d := Wrap(mem, OnKind(OpKindWrite, Always()))

	p := bytes.Repeat([]byte{0xcc}, 512)
	require.ErrorIs(t, d.WriteBlock(3, p), ErrInjected)
	require.Equal(t, 0, mem.Materialized())
	require.NoError(t, d.Close())
}

func TestRandomLatency(t *testing.T) {
	defer leaktest.AfterTest(t)()
	mem := blockdev.NewMem(512, 16)
	d := Wrap(mem, RandomLatency(OpKindRead, time.Millisecond, 42, 10*time.Millisecond))

	// Latency injection never fails the operation, and the lifetime cap
	// bounds how long this loop can take.
	p := make([]byte, 512)
	for i := 0; i < 100; i++ {
		require.NoError(t, d.ReadBlock(blockdev.BlockNum(i%16), p))
	}
	require.NoError(t, d.Close())
}

func TestOpString(t *testing.T) {
	require.Equal(t, "read", OpRead.String())
	require.Equal(t, "write", OpWrite.String())
	require.Equal(t, "sync", OpSync.String())
	require.Equal(t, OpKindRead, OpRead.OpKind())
	require.Equal(t, OpKindWrite, OpWrite.OpKind())
	require.Equal(t, OpKindWrite, OpSync.OpKind())
}
