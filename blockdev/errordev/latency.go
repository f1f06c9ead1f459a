// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package errordev

import (
	"encoding/binary"
	"hash/maphash"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/bufcache/blockdev"
)

// RandomLatency constructs an Injector that does not inject errors but
// instead injects random latency into operations of the given kind. The
// amount of latency injected follows an exponential distribution with the
// provided mean. Latency is derived from the provided seed and is
// deterministic with respect to each block number, so concurrency
// constrained to separate blocks does not perturb it.
//
// If limit is nonzero, total latency injected over the lifetime of the
// Injector is capped to limit.
func RandomLatency(kind OpKind, mean time.Duration, seed int64, limit time.Duration) Injector {
	rl := &randomLatency{
		kind:  kind,
		mean:  mean,
		limit: limit,
	}
	rl.keyedPrng.init(seed)
	return rl
}

type randomLatency struct {
	kind OpKind
	// mean is the mean duration injected each operation.
	mean time.Duration
	// limit configures a limit on total latency injected over the lifetime
	// of the Injector if nonzero.
	limit time.Duration
	// agg is the aggregate latency injected over the lifetime of the
	// Injector.
	agg atomic.Int64
	keyedPrng
}

// MaybeError implements the Injector interface.
func (rl *randomLatency) MaybeError(op Op, blockNum blockdev.BlockNum) error {
	if op.OpKind() != rl.kind {
		return nil
	}
	var dur time.Duration
	rl.keyedPrng.withKey(blockNum, func(prng *rand.Rand) {
		// Cap the multiplier: otherwise it seems possible (although very
		// unlikely) that ExpFloat64 generates a value high enough to cause a
		// test timeout.
		dur = time.Duration(min(prng.ExpFloat64(), 20.0) * float64(rl.mean))
	})

	// Apply a limit on total latency injected over the lifetime of the
	// Injector, if one is configured.
	if rl.limit > 0 {
		if v := time.Duration(rl.agg.Add(int64(dur))); v-dur > rl.limit {
			// We'd already exceeded the limit before adding dur. Don't
			// inject anything.
			return nil
		} else if v > rl.limit {
			// We're about to exceed the limit. Cap the duration.
			dur -= v - rl.limit
		}
	}

	time.Sleep(dur)
	return nil
}

// keyedPrng maintains a separate prng per-key that's deterministic with
// respect to the key: its behavior for a particular key is deterministic
// regardless of intervening evaluations for operations on other keys.
type keyedPrng struct {
	rootSeed int64
	mu       struct {
		sync.Mutex
		h            maphash.Hash
		perBlockPrng map[blockdev.BlockNum]*rand.Rand
	}
}

func (p *keyedPrng) init(rootSeed int64) {
	p.rootSeed = rootSeed
	p.mu.perBlockPrng = make(map[blockdev.BlockNum]*rand.Rand)
}

func (p *keyedPrng) withKey(key blockdev.BlockNum, fn func(*rand.Rand)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prng, ok := p.mu.perBlockPrng[key]
	if !ok {
		// This is the first time an operation has been performed on the key.
		// Initialize the per-key prng by computing a deterministic hash of
		// the root seed and the key.
		p.mu.h.Reset()
		var b [16]byte
		binary.LittleEndian.PutUint64(b[:8], uint64(p.rootSeed))
		binary.LittleEndian.PutUint64(b[8:], uint64(key))
		if _, err := p.mu.h.Write(b[:]); err != nil {
			panic(err)
		}
		seed := p.mu.h.Sum64()
		prng = rand.New(rand.NewPCG(0, seed))
		p.mu.perBlockPrng[key] = prng
	}
	fn(prng)
}
