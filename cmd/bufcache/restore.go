// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/bufcache/blockdev"
	"github.com/cockroachdb/bufcache/internal/humanize"
	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <image-file> <device-file>",
	Short: "restore an image onto a fresh device file",
	Long: `
Create a zero-filled device file of the geometry given by --block-size and
--num-blocks and restore an image onto it. The image's block size must match
--block-size and the image must not hold more blocks than --num-blocks; a
mismatch is reported before any blocks are written.
`,
	Args: cobra.ExactArgs(2),
	RunE: runRestore,
}

func runRestore(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	dev, err := blockdev.CreateFile(args[1], blockSize, numBlocks, blockdev.FileOptions{Checksums: checksums})
	if err != nil {
		return err
	}
	stats, err := blockdev.ReadImage(f, dev)
	if err == nil {
		err = dev.Sync()
	}
	if err != nil {
		dev.Close()
		return err
	}
	fmt.Printf("restored %s blocks (%s) to %s\n",
		humanize.Count.Uint64(stats.Blocks),
		humanize.Bytes.Uint64(stats.DataBytes),
		args[1])
	return dev.Close()
}
