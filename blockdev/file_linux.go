// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build linux

package blockdev

import (
	"os"

	"golang.org/x/sys/unix"
)

// fdatasync persists file data (and the metadata needed to retrieve it)
// without forcing an update of unrelated file metadata such as timestamps.
func fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
