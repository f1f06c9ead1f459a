// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/bufcache/blockdev"
	"github.com/cockroachdb/bufcache/internal/compression"
	"github.com/cockroachdb/bufcache/internal/humanize"
	"github.com/spf13/cobra"
)

var dumpCompression string

var dumpCmd = &cobra.Command{
	Use:   "dump <device-file> <image-file>",
	Short: "write an image of a device's contents",
	Long: `
Serialize the contents of a device file into a compact image. Blocks that are
all zeroes are skipped and the rest are compressed with the --compression
algorithm, so the image of a mostly-empty device is small. The geometry flags
must match the ones the device file was created with.
`,
	Args: cobra.ExactArgs(2),
	RunE: runDump,
}

func runDump(cmd *cobra.Command, args []string) error {
	algo, err := compression.ParseAlgorithm(dumpCompression)
	if err != nil {
		return err
	}
	dev, err := blockdev.OpenFile(args[0], blockSize, numBlocks, blockdev.FileOptions{Checksums: checksums})
	if err != nil {
		return err
	}
	defer dev.Close()

	f, err := os.Create(args[1])
	if err != nil {
		return err
	}
	stats, err := blockdev.WriteImage(f, dev, algo)
	if err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	ratio := 100.0
	if stats.DataBytes > 0 {
		ratio = 100 * float64(stats.ImageBytes) / float64(stats.DataBytes)
	}
	fmt.Printf("dumped %s blocks (%s) to %s (%s, %.1f%%)\n",
		humanize.Count.Uint64(stats.Blocks),
		humanize.Bytes.Uint64(stats.DataBytes),
		args[1],
		humanize.Bytes.Uint64(stats.ImageBytes),
		ratio)
	return nil
}
