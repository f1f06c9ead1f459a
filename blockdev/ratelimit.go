// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockdev

import "github.com/cockroachdb/bufcache/internal/rate"

// RateLimited wraps a Device, limiting the rate of block reads and writes
// with a token bucket of one token per operation. It is used to simulate
// slow devices under benchmarks.
type RateLimited struct {
	dev Device
	lim *rate.Limiter
}

var _ Device = (*RateLimited)(nil)

// NewRateLimited wraps dev with a limit of opsPerSec block operations per
// second, permitting bursts of up to one second's allowance.
func NewRateLimited(dev Device, opsPerSec float64) *RateLimited {
	burst := opsPerSec
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{dev: dev, lim: rate.NewLimiter(opsPerSec, burst)}
}

// Unwrap returns the device underlying the rate-limited device.
func (d *RateLimited) Unwrap() Device { return d.dev }

// SetRate updates the operation rate limit.
func (d *RateLimited) SetRate(opsPerSec float64) { d.lim.SetRate(opsPerSec) }

// BlockSize implements Device.
func (d *RateLimited) BlockSize() int { return d.dev.BlockSize() }

// NumBlocks implements Device.
func (d *RateLimited) NumBlocks() uint64 { return d.dev.NumBlocks() }

// ReadBlock implements Device.
func (d *RateLimited) ReadBlock(blockNum BlockNum, p []byte) error {
	d.lim.Wait(1)
	return d.dev.ReadBlock(blockNum, p)
}

// WriteBlock implements Device.
func (d *RateLimited) WriteBlock(blockNum BlockNum, p []byte) error {
	d.lim.Wait(1)
	return d.dev.WriteBlock(blockNum, p)
}

// Sync implements Device. Syncs are not rate limited.
func (d *RateLimited) Sync() error { return d.dev.Sync() }

// Close implements Device.
func (d *RateLimited) Close() error { return d.dev.Close() }
