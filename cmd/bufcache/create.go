// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"

	"github.com/cockroachdb/bufcache/blockdev"
	"github.com/cockroachdb/bufcache/internal/humanize"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create <device-file>",
	Short: "create a zero-filled device file",
	Long: `
Create (or truncate) a device file of the geometry given by --block-size and
--num-blocks. With --checksums the file carries a per-block checksum trailer
and every later open of it must pass --checksums too.
`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func runCreate(cmd *cobra.Command, args []string) error {
	d, err := blockdev.CreateFile(args[0], blockSize, numBlocks, blockdev.FileOptions{Checksums: checksums})
	if err != nil {
		return err
	}
	fmt.Printf("created %s: %s blocks of %s (%s)\n",
		args[0],
		humanize.Count.Uint64(numBlocks),
		humanize.Bytes.Int64(int64(blockSize)),
		humanize.Bytes.Uint64(numBlocks*uint64(blockSize)))
	return d.Close()
}
