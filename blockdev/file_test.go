// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockdev

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/stretchr/testify/require"
)

func TestFileRoundTrip(t *testing.T) {
	defer leaktest.AfterTest(t)()
	for _, checksums := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "checksums"}[checksums], func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "dev")
			d, err := CreateFile(path, 512, 16, FileOptions{Checksums: checksums})
			require.NoError(t, err)
			require.Equal(t, path, d.Path())
			require.Equal(t, 512, d.BlockSize())
			require.EqualValues(t, 16, d.NumBlocks())

			// A fresh device reads as zeroes, checksums validating.
			p := make([]byte, 512)
			require.NoError(t, d.ReadBlock(15, p))
			require.Equal(t, make([]byte, 512), p)

			want := bytes.Repeat([]byte{0x5a}, 512)
			require.NoError(t, d.WriteBlock(3, want))
			require.NoError(t, d.Sync())
			require.NoError(t, d.Close())

			// Contents survive a reopen.
			d, err = OpenFile(path, 512, 16, FileOptions{Checksums: checksums})
			require.NoError(t, err)
			require.NoError(t, d.ReadBlock(3, p))
			require.Equal(t, want, p)
			require.NoError(t, d.ReadBlock(4, p))
			require.Equal(t, make([]byte, 512), p)
			require.NoError(t, d.Close())
		})
	}
}

func TestFileGeometryMismatch(t *testing.T) {
	defer leaktest.AfterTest(t)()
	path := filepath.Join(t.TempDir(), "dev")
	d, err := CreateFile(path, 512, 16, FileOptions{})
	require.NoError(t, err)
	require.NoError(t, d.Close())

	_, err = OpenFile(path, 512, 32, FileOptions{})
	require.ErrorContains(t, err, "geometry requires")
	_, err = OpenFile(path, 1024, 16, FileOptions{})
	require.ErrorContains(t, err, "geometry requires")
	// A checksummed open of a plain file fails the size check too.
	_, err = OpenFile(path, 512, 16, FileOptions{Checksums: true})
	require.ErrorContains(t, err, "geometry requires")

	_, err = CreateFile(path, 0, 16, FileOptions{})
	require.ErrorContains(t, err, "invalid geometry")
	_, err = OpenFile(filepath.Join(t.TempDir(), "missing"), 512, 16, FileOptions{})
	require.Error(t, err)
}

func TestFileChecksumCorruption(t *testing.T) {
	defer leaktest.AfterTest(t)()
	path := filepath.Join(t.TempDir(), "dev")
	d, err := CreateFile(path, 512, 16, FileOptions{Checksums: true})
	require.NoError(t, err)
	want := bytes.Repeat([]byte{0x5a}, 512)
	require.NoError(t, d.WriteBlock(3, want))
	require.NoError(t, d.Close())

	// Flip one byte in block 3's data.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0x00}, 3*512+100)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	d, err = OpenFile(path, 512, 16, FileOptions{Checksums: true})
	require.NoError(t, err)
	p := make([]byte, 512)
	err = d.ReadBlock(3, p)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCorruption)
	require.ErrorContains(t, err, "checksum mismatch")
	// Other blocks are unaffected.
	require.NoError(t, d.ReadBlock(4, p))
	require.NoError(t, d.Close())

	// A corrupted checksum trailer is also detected.
	f, err = os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xff}, 16*512+4*8)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	d, err = OpenFile(path, 512, 16, FileOptions{Checksums: true})
	require.NoError(t, err)
	require.ErrorIs(t, d.ReadBlock(4, p), ErrCorruption)
	require.NoError(t, d.Close())
}

func TestFileOverwrite(t *testing.T) {
	defer leaktest.AfterTest(t)()
	path := filepath.Join(t.TempDir(), "dev")
	d, err := CreateFile(path, 512, 8, FileOptions{Checksums: true})
	require.NoError(t, err)

	p := make([]byte, 512)
	for round := 0; round < 3; round++ {
		for i := range p {
			p[i] = byte(round)
		}
		require.NoError(t, d.WriteBlock(5, p))
		got := make([]byte, 512)
		require.NoError(t, d.ReadBlock(5, got))
		require.Equal(t, p, got)
	}
	require.NoError(t, d.Close())
}
