// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/bufcache"
	"github.com/cockroachdb/bufcache/blockdev"
	"github.com/cockroachdb/bufcache/internal/humanize"
	"github.com/cockroachdb/bufcache/internal/randvar"
	"github.com/cockroachdb/bufcache/internal/rate"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var benchConfig struct {
	numOps                 uint64
	readPercent            int
	blocks                 string
	maxOpsPerSec           string
	deviceOpsPerSec        float64
	numBufs                int
	numBuckets             int
	seed                   uint64
	targetCompressionRatio float64
}

var benchCmd = &cobra.Command{
	Use:   "bench [<device-file>]",
	Short: "run a read/write workload through the cache",
	Long: `
Run a mixed read/write block workload through the cache. Without a device
file argument the workload runs against an in-memory device of the geometry
given by --block-size and --num-blocks; with one, against an existing device
file created with the create command.

Each operation picks a block number and either reads the block through the
cache or overwrites it and writes it back. The --read-percent flag sets the
mix. The --blocks flag takes the specification for a random variable:
[<type>:]<min>[-<max>]. The <type> parameter must be one of "uniform" or
"zipf". If <type> is omitted, a uniform distribution is used. If <max> is
omitted it is set to the same value as <min>. By default block numbers are
drawn uniformly from the whole device; a spec like "zipf:0-16383" skews the
workload toward a small set of hot blocks, which is what a cache likes.

The --max-ops-per-sec flag takes <randvar>[/<secs>]: a random variable for
the ops/sec limit and, optionally, a period in seconds with which to redraw
it. "1000" limits the workload to a constant 1000 ops/sec; "500-2000/10"
redraws a uniformly random limit every 10 seconds.

The --device-ops-per-sec flag throttles the device itself rather than the
workload, to make the cost of a cache miss resemble real hardware.
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBench,
}

type bench struct {
	cache     *bufcache.Cache
	handle    *bufcache.Handle
	blockDist randvar.Static
	limiter   *rate.Limiter
	readLat   prometheus.Histogram
	writeLat  prometheus.Histogram
	ops       atomic.Uint64

	reg    *histogramRegistry
	reads  *namedHistogram
	writes *namedHistogram

	// throughput holds one ops/sec sample per tick. Appended to only from
	// the tick callback.
	throughput []float64
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchConfig.readPercent < 0 || benchConfig.readPercent > 100 {
		return fmt.Errorf("read-percent %d is not a percentage", benchConfig.readPercent)
	}

	target := "mem"
	var dev blockdev.Device
	if len(args) == 0 {
		if blockSize <= 0 || numBlocks == 0 {
			return fmt.Errorf("invalid geometry %d blocks of %d bytes", numBlocks, blockSize)
		}
		dev = blockdev.NewMem(blockSize, numBlocks)
	} else {
		target = args[0]
		f, err := blockdev.OpenFile(args[0], blockSize, numBlocks, blockdev.FileOptions{Checksums: checksums})
		if err != nil {
			return err
		}
		dev = f
	}
	if benchConfig.deviceOpsPerSec > 0 {
		dev = blockdev.NewRateLimited(dev, benchConfig.deviceOpsPerSec)
	}

	b := &bench{
		blockDist: randvar.NewUniform(nil, 0, dev.NumBlocks()-1),
		readLat:   newDeviceLatencyHistogram("read"),
		writeLat:  newDeviceLatencyHistogram("write"),
		reg:       newHistogramRegistry(),
	}
	if benchConfig.blocks != "" {
		var err error
		b.blockDist, err = parseRandVarSpec(benchConfig.blocks)
		if err != nil {
			return err
		}
	}
	if benchConfig.maxOpsPerSec != "" {
		var err error
		b.limiter, err = newFluctuatingRateLimiter(benchConfig.maxOpsPerSec)
		if err != nil {
			return err
		}
	}

	var err error
	b.cache, err = bufcache.New(&bufcache.Options{
		NumBufs:      benchConfig.numBufs,
		NumBuckets:   benchConfig.numBuckets,
		BlockSize:    blockSize,
		ReadLatency:  b.readLat,
		WriteLatency: b.writeLat,
	})
	if err != nil {
		return err
	}
	b.handle, err = b.cache.Attach(dev)
	if err != nil {
		return err
	}
	b.reads = b.reg.Register("read")
	b.writes = b.reg.Register("write")

	fmt.Printf("dev %s\nconcurrency %d\n", target, concurrency)
	fmt.Printf("pool %s buffers of %s (%s)\n",
		humanize.Count.Int64(int64(benchConfig.numBufs)),
		humanize.Bytes.Int64(int64(blockSize)),
		humanize.Bytes.Int64(int64(benchConfig.numBufs)*int64(blockSize)))

	return runTest(test{
		init: b.init,
		tick: b.tick,
		done: b.done,
	})
}

func newDeviceLatencyHistogram(op string) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bufcache_device_" + op + "_duration_nanoseconds",
		Buckets: prometheus.ExponentialBuckets(float64(minLatency.Nanoseconds()), 2, 21),
	})
}

func (b *bench) init(ctx context.Context, g *errgroup.Group) {
	for i := 0; i < concurrency; i++ {
		rng := rand.New(rand.NewPCG(benchConfig.seed, uint64(i)))
		g.Go(func() error {
			return b.worker(ctx, rng)
		})
	}
}

func (b *bench) worker(ctx context.Context, rng *rand.Rand) error {
	for ctx.Err() == nil {
		if b.limiter != nil {
			b.limiter.Wait(1)
		}
		if benchConfig.numOps > 0 && b.ops.Add(1) > benchConfig.numOps {
			return nil
		}
		blockNum := blockdev.BlockNum(b.blockDist.Uint64())
		start := time.Now()
		if rng.IntN(100) < benchConfig.readPercent {
			buf, err := b.handle.Read(blockNum)
			if err != nil {
				return err
			}
			buf.Release()
			b.reads.Record(time.Since(start))
		} else {
			buf := b.handle.Acquire(blockNum)
			fillRandom(rng, buf.Data(), benchConfig.targetCompressionRatio)
			err := buf.Store()
			buf.Release()
			if err != nil {
				return err
			}
			b.writes.Record(time.Since(start))
		}
	}
	return nil
}

func (b *bench) tick(elapsed time.Duration, i int) {
	if i%20 == 0 {
		fmt.Println("____optype__elapsed____ops/sec__p50(ms)__p95(ms)__p99(ms)_pMax(ms)")
	}
	var tickOps float64
	b.reg.Tick(func(tick histogramTick) {
		h := tick.Hist
		tickOps += float64(h.TotalCount()) / tick.Elapsed.Seconds()
		fmt.Printf("%10s %8s %10.1f %8.1f %8.1f %8.1f %8.1f\n",
			tick.Name,
			time.Duration(elapsed.Seconds()+0.5)*time.Second,
			float64(h.TotalCount())/tick.Elapsed.Seconds(),
			time.Duration(h.ValueAtQuantile(50)).Seconds()*1000,
			time.Duration(h.ValueAtQuantile(95)).Seconds()*1000,
			time.Duration(h.ValueAtQuantile(99)).Seconds()*1000,
			time.Duration(h.ValueAtQuantile(100)).Seconds()*1000,
		)
	})
	b.throughput = append(b.throughput, tickOps)
}

func (b *bench) done(elapsed time.Duration) {
	fmt.Println()
	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.SetHeader([]string{
		"optype", "ops", "ops/sec", "avg(ms)", "p50(ms)", "p95(ms)", "p99(ms)", "pMax(ms)"})
	b.reg.Tick(func(tick histogramTick) {
		h := tick.Cumulative
		tbl.Append([]string{
			tick.Name,
			fmt.Sprintf("%d", h.TotalCount()),
			fmt.Sprintf("%.1f", float64(h.TotalCount())/elapsed.Seconds()),
			fmt.Sprintf("%.2f", h.Mean()/1e6),
			fmt.Sprintf("%.2f", time.Duration(h.ValueAtQuantile(50)).Seconds()*1000),
			fmt.Sprintf("%.2f", time.Duration(h.ValueAtQuantile(95)).Seconds()*1000),
			fmt.Sprintf("%.2f", time.Duration(h.ValueAtQuantile(99)).Seconds()*1000),
			fmt.Sprintf("%.2f", time.Duration(h.ValueAtQuantile(100)).Seconds()*1000),
		})
	})
	tbl.Render()

	m := b.cache.Metrics()
	fmt.Printf("\ncache: %s\n", m)
	if acquires := m.Acquires(); acquires > 0 {
		fmt.Printf("hit rate: %.1f%%\n", 100*float64(m.Hits)/float64(acquires))
	}
	printDeviceLatency("device reads", b.readLat)
	printDeviceLatency("device writes", b.writeLat)

	if len(b.throughput) > 1 {
		fmt.Printf("\nops/sec\n%s\n", asciigraph.Plot(b.throughput, asciigraph.Height(10)))
	}
}

// printDeviceLatency reports how much I/O reached the device; the difference
// between it and the op counts above is what the cache absorbed.
func printDeviceLatency(label string, h prometheus.Histogram) {
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		return
	}
	count := m.Histogram.GetSampleCount()
	if count == 0 {
		fmt.Printf("%s: none\n", label)
		return
	}
	sum := time.Duration(m.Histogram.GetSampleSum())
	fmt.Printf("%s: %s in %s (avg %s)\n",
		label, humanize.Count.Uint64(count), sum.Round(time.Millisecond),
		(sum / time.Duration(count)).Round(time.Microsecond))
}
