// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"log"
	"os"
	"time"

	"github.com/cockroachdb/bufcache"
	"github.com/spf13/cobra"
)

var (
	blockSize   int
	numBlocks   uint64
	checksums   bool
	concurrency int
	duration    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "bufcache [command] (flags)",
	Short: "block device benchmarking/imaging tool",
	Long:  ``,
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(
		createCmd,
		dumpCmd,
		restoreCmd,
		benchCmd,
	)

	for _, cmd := range []*cobra.Command{createCmd, dumpCmd, restoreCmd, benchCmd} {
		cmd.Flags().IntVar(
			&blockSize, "block-size", bufcache.DefaultBlockSize, "size of a device block in bytes")
		cmd.Flags().Uint64Var(
			&numBlocks, "num-blocks", 16384, "number of blocks on the device")
		cmd.Flags().BoolVar(
			&checksums, "checksums", false, "maintain per-block checksums on the device file")
	}

	dumpCmd.Flags().StringVar(
		&dumpCompression, "compression", "minlz",
		"block compression algorithm (none, snappy, minlz, zstd)")

	benchCmd.Flags().IntVarP(
		&concurrency, "concurrency", "c", 1, "number of concurrent workers")
	benchCmd.Flags().DurationVarP(
		&duration, "duration", "d", 10*time.Second, "the duration to run (0, run forever)")
	benchCmd.Flags().Uint64VarP(
		&benchConfig.numOps, "num-ops", "n", 0, "maximum number of operations (0 means unlimited)")
	benchCmd.Flags().IntVar(
		&benchConfig.readPercent, "read-percent", 95,
		"percent (0-100) of operations that are reads")
	benchCmd.Flags().StringVar(
		&benchConfig.blocks, "blocks", "",
		"block number distribution [{zipf,uniform}:]min[-max] (default: uniform over the device)")
	benchCmd.Flags().StringVar(
		&benchConfig.maxOpsPerSec, "max-ops-per-sec", "",
		"workload rate limit as ops/sec [{zipf,uniform}:]min[-max][/<fluctuate-secs>]")
	benchCmd.Flags().Float64Var(
		&benchConfig.deviceOpsPerSec, "device-ops-per-sec", 0,
		"throttle the device itself to this many I/O operations per second (0, unthrottled)")
	benchCmd.Flags().IntVar(
		&benchConfig.numBufs, "num-bufs", bufcache.DefaultNumBufs, "number of buffers in the pool")
	benchCmd.Flags().IntVar(
		&benchConfig.numBuckets, "num-buckets", bufcache.DefaultNumBuckets,
		"number of lock stripes in the pool")
	benchCmd.Flags().Uint64Var(
		&benchConfig.seed, "seed", 1, "random seed")
	benchCmd.Flags().Float64Var(
		&benchConfig.targetCompressionRatio, "target-compression-ratio", 1.0,
		"target compression ratio for written blocks. Must be >= 1.0")

	if err := rootCmd.Execute(); err != nil {
		// Cobra has already printed the error message.
		os.Exit(1)
	}
}
