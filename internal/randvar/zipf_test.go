// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package randvar

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZipf(t *testing.T) {
	rng := rand.New(rand.NewPCG(0, 0))
	z, err := NewZipf(rng, 1, 100, 0.99)
	require.NoError(t, err)

	for i := 0; i < 10000; i++ {
		v := z.Uint64()
		require.GreaterOrEqual(t, v, uint64(1))
		require.LessOrEqual(t, v, uint64(100))
	}

	require.NoError(t, z.IncMax())
	for i := 0; i < 1000; i++ {
		require.LessOrEqual(t, z.Uint64(), uint64(101))
	}
}

func TestZipfRejectsBadTheta(t *testing.T) {
	rng := rand.New(rand.NewPCG(0, 0))
	_, err := NewZipf(rng, 1, 100, 1.0)
	require.Error(t, err)
	_, err = NewZipf(rng, 1, 100, -0.5)
	require.Error(t, err)
	_, err = NewZipf(rng, 100, 1, 0.99)
	require.Error(t, err)
}

func TestUniform(t *testing.T) {
	rng := rand.New(rand.NewPCG(0, 0))
	u := NewUniform(rng, 10, 20)

	seen := make(map[uint64]int)
	for i := 0; i < 10000; i++ {
		v := u.Uint64()
		require.GreaterOrEqual(t, v, uint64(10))
		require.LessOrEqual(t, v, uint64(20))
		seen[v]++
	}
	// Every value in a small range should be drawn at least once.
	require.Len(t, seen, 11)

	u.IncMax(10)
	for i := 0; i < 1000; i++ {
		require.LessOrEqual(t, u.Uint64(), uint64(30))
	}
}
