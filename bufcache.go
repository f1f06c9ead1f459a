// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package bufcache implements a fixed-capacity cache of device blocks with
// exclusive, blocking access to each cached block.
//
// The cache owns a pool of NumBufs block-sized buffers, allocated up front
// in one slab and recycled for the lifetime of the cache; cache pressure
// never allocates. Buffers are keyed by a (device, block number) identity.
// A caller acquires a block's buffer through a device Handle, holds it
// exclusively while reading or mutating it, and releases it. Acquiring a
// block whose buffer is held blocks until the holder releases it, so at
// most one goroutine operates on a given block at a time and concurrent
// goroutines never observe each other's partial updates.
//
// # Buckets
//
// Entries are distributed over NumBuckets intrusive lists by block number.
// Each bucket's mutex guards the identities, reference counts and list
// links of the entries currently assigned to it, so acquisitions of blocks
// with different home buckets contend only rarely. A released entry keeps
// its identity and bucket; a later acquisition of the same block finds the
// cached contents again without device I/O.
//
// # Recycling
//
// An acquisition that finds no entry for its block takes one from the free
// entries, those with a zero reference count, preferring nothing smarter
// than the first free entry in arena order. The chosen entry may belong to
// any bucket; it is relabeled with the new identity, invalidated, and if it
// belonged to some other bucket, relinked to the block's home bucket. All
// recycling is serialized by a cache-wide steal mutex, which keeps the
// search and the claim atomic and makes concurrent misses for the same
// block converge on one entry. When every buffer in the pool is referenced,
// recycling is fatal; the pool must be sized for the worst-case number of
// concurrently held blocks.
//
// # Lock order
//
// The steal mutex precedes every bucket mutex. Two bucket mutexes are held
// together only under the steal mutex, which is what makes the ordering of
// the pair irrelevant. The fast path takes only the block's home bucket
// mutex. No metadata mutex is held while blocking on an entry's exclusive
// token or during device I/O.
package bufcache

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/bufcache/blockdev"
	"github.com/cockroachdb/bufcache/internal/invariants"
	"github.com/cockroachdb/errors"
)

// Cache is a fixed pool of block buffers shared by the devices attached to
// it. Construct one with New; the zero value is not usable.
//
// A Cache is safe for concurrent use.
type Cache struct {
	opts *Options

	// entries is the buffer arena. Entries are never freed or moved; list
	// membership is expressed with arena indexes, not pointers.
	entries []entry
	buckets []bucket

	// slab backs every entry's data.
	slab []byte

	// stealMu serializes recycling. It is acquired before bucket mutexes,
	// never after; the fast path does not touch it.
	stealMu sync.Mutex

	// steals and relocations are guarded by stealMu.
	steals      int64
	relocations int64

	// closed is guarded by stealMu.
	closed bool

	idAlloc     atomic.Uint64
	openHandles atomic.Int64
}

// New constructs a Cache. The caller must call Close when done with it.
func New(opts *Options) (*Cache, error) {
	opts = opts.EnsureDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	c := &Cache{
		opts:    opts,
		entries: make([]entry, opts.NumBufs),
		buckets: make([]bucket, opts.NumBuckets),
		slab:    make([]byte, opts.NumBufs*opts.BlockSize),
	}
	for i := range c.buckets {
		c.buckets[i].head = -1
	}
	for i := range c.entries {
		e := &c.entries[i]
		e.idx = int32(i)
		e.data = c.slab[i*opts.BlockSize : (i+1)*opts.BlockSize : (i+1)*opts.BlockSize]
		e.lock.init()
		e.prev, e.next = -1, -1
		// Seed the buckets round-robin. The zero identity on fresh entries
		// can never match a real block: DeviceID 0 is reserved.
		c.pushFront(int32(i%len(c.buckets)), e)
	}

	// Note: this is a no-op if invariants are disabled or race is enabled.
	invariants.SetFinalizer(c, func(obj interface{}) {
		c := obj.(*Cache)
		if !c.closed {
			fmt.Fprintf(os.Stderr, "%p: cache was not closed\n", c)
			os.Exit(1)
		}
	})
	return c, nil
}

// Close releases the cache. It is an error to close while device handles
// remain open or buffers remain referenced; the cache stays usable when an
// error is returned.
func (c *Cache) Close() error {
	c.stealMu.Lock()
	defer c.stealMu.Unlock()
	if c.closed {
		return errors.New("bufcache: cache is already closed")
	}
	if n := c.openHandles.Load(); n != 0 {
		return errors.Newf("bufcache: %d device handles still open", n)
	}
	var held int
	for i := range c.entries {
		if c.entries[i].ref.refs() != 0 {
			held++
		}
	}
	if held != 0 {
		return errors.Newf("bufcache: %d buffers still referenced", held)
	}
	c.closed = true
	return nil
}

func (c *Cache) checkOpen() error {
	c.stealMu.Lock()
	defer c.stealMu.Unlock()
	if c.closed {
		return errors.New("bufcache: cache is closed")
	}
	return nil
}

// acquire returns the entry caching (dev, blockNum) with its reference
// count raised and its exclusive token held.
func (c *Cache) acquire(dev DeviceID, blockNum blockdev.BlockNum) *entry {
	bi := c.bucketOf(blockNum)
	bkt := &c.buckets[bi]

	// Fast path: the block has an entry on its home bucket. Raising the
	// reference count under the bucket mutex pins the entry; the token is
	// then acquired with no mutex held, since the wait can be long.
	bkt.mu.Lock()
	if e := c.findLocked(bi, dev, blockNum); e != nil {
		e.ref.acquire()
		bkt.mu.Unlock()
		bkt.hits.Add(1)
		e.lock.lock()
		c.maybeCheckInvariants()
		return e
	}
	bkt.mu.Unlock()
	bkt.misses.Add(1)

	e := c.steal(bi, dev, blockNum)
	e.lock.lock()
	c.maybeCheckInvariants()
	return e
}

// steal labels a free entry with the identity (dev, blockNum) and returns
// it holding one reference, relinked to bucket bi if it came from another.
// The caller holds no mutexes.
func (c *Cache) steal(bi int32, dev DeviceID, blockNum blockdev.BlockNum) *entry {
	c.stealMu.Lock()
	bkt := &c.buckets[bi]
	bkt.mu.Lock()

	// Re-check the bucket. Between the fast-path miss and taking the steal
	// mutex, a racing acquisition of the same block may have installed an
	// entry; stealing another would give the block two identities.
	if e := c.findLocked(bi, dev, blockNum); e != nil {
		e.ref.acquire()
		bkt.mu.Unlock()
		c.stealMu.Unlock()
		return e
	}

	for i := range c.entries {
		e := &c.entries[i]
		// The unlocked read is sound: e.bucket changes only under stealMu,
		// which we hold, and a stale zero reference count is re-checked
		// under the owning bucket's mutex before the claim.
		if e.ref.refs() != 0 {
			continue
		}
		if e.bucket == bi {
			// Holding bkt.mu makes the zero count stable: references rise
			// only under the entry's bucket mutex. Claim in place, keeping
			// the entry's list position.
			e.relabel(dev, blockNum)
			c.steals++
			bkt.mu.Unlock()
			c.stealMu.Unlock()
			return e
		}
		vb := &c.buckets[e.bucket]
		vb.mu.Lock()
		if e.ref.refs() != 0 {
			// Lost a race with a fast-path acquisition of the entry's
			// block. Some other entry will do.
			vb.mu.Unlock()
			continue
		}
		e.relabel(dev, blockNum)
		c.unlink(e)
		vb.mu.Unlock()
		c.pushFront(bi, e)
		c.steals++
		c.relocations++
		bkt.mu.Unlock()
		c.stealMu.Unlock()
		return e
	}

	// The scan is over; drop the mutexes before dying so that a Logger that
	// panics instead of exiting leaves the pool usable once the caller's
	// leak is repaired.
	bkt.mu.Unlock()
	c.stealMu.Unlock()
	c.fatalf("bufcache: no free buffer for dev=%s block=%s: all %d buffers are referenced",
		dev, blockNum, len(c.entries))
	panic("unreachable")
}

// deviceRefs returns the number of entries labeled with dev whose reference
// count is non-zero.
func (c *Cache) deviceRefs(dev DeviceID) int {
	c.stealMu.Lock()
	defer c.stealMu.Unlock()
	var n int
	for bi := range c.buckets {
		b := &c.buckets[bi]
		b.mu.Lock()
		for i := b.head; i != -1; i = c.entries[i].next {
			e := &c.entries[i]
			if e.dev == dev && e.ref.refs() != 0 {
				n++
			}
		}
		b.mu.Unlock()
	}
	return n
}

// Metrics returns a snapshot of the cache's metrics. The counters are read
// without a consistent cut across buckets; totals can be momentarily skewed
// while operations are in flight.
func (c *Cache) Metrics() Metrics {
	var m Metrics
	for i := range c.buckets {
		m.Hits += c.buckets[i].hits.Load()
		m.Misses += c.buckets[i].misses.Load()
	}
	c.stealMu.Lock()
	m.Steals = c.steals
	m.Relocations = c.relocations
	c.stealMu.Unlock()
	for i := range c.entries {
		if c.entries[i].ref.refs() != 0 {
			m.Active++
		}
		if c.entries[i].valid.Load() {
			m.Valid++
		}
	}
	return m
}

// fatalf reports an unrecoverable condition. The default Logger exits the
// process; if a Logger returns instead, fatalf panics, since the caller is
// owed a buffer that does not exist.
func (c *Cache) fatalf(format string, args ...interface{}) {
	c.opts.Logger.Fatalf(format, args...)
	panic(fmt.Sprintf(format, args...))
}

func (c *Cache) maybeCheckInvariants() {
	if invariants.Enabled && invariants.Sometimes(10) {
		c.checkInvariants()
	}
}

// checkInvariants validates the structure of the pool: every entry on
// exactly one bucket list, reciprocal links, every labeled entry on its
// block's home bucket, and no identity on two entries. The caller holds no
// mutexes.
func (c *Cache) checkInvariants() {
	c.stealMu.Lock()
	defer c.stealMu.Unlock()
	for bi := range c.buckets {
		c.buckets[bi].mu.Lock()
		defer c.buckets[bi].mu.Unlock()
	}

	type identity struct {
		dev      DeviceID
		blockNum blockdev.BlockNum
	}
	seen := make(map[identity]int32, len(c.entries))
	visited := make([]bool, len(c.entries))
	var n int
	for bi := range c.buckets {
		prev := int32(-1)
		for i := c.buckets[bi].head; i != -1; i = c.entries[i].next {
			e := &c.entries[i]
			if visited[i] {
				panic(errors.AssertionFailedf("bufcache: entry %d linked twice", i))
			}
			visited[i] = true
			n++
			if e.bucket != int32(bi) {
				panic(errors.AssertionFailedf(
					"bufcache: entry %d on bucket %d list but labeled bucket %d", i, bi, e.bucket))
			}
			if e.prev != prev {
				panic(errors.AssertionFailedf(
					"bufcache: entry %d prev link is %d, expected %d", i, e.prev, prev))
			}
			if e.dev != 0 {
				if hb := c.bucketOf(e.blockNum); hb != int32(bi) {
					panic(errors.AssertionFailedf(
						"bufcache: entry %d for block %s on bucket %d, home is %d",
						i, e.blockNum, bi, hb))
				}
				id := identity{dev: e.dev, blockNum: e.blockNum}
				if j, ok := seen[id]; ok {
					panic(errors.AssertionFailedf(
						"bufcache: entries %d and %d both labeled dev=%s block=%s",
						j, i, e.dev, e.blockNum))
				}
				seen[id] = int32(i)
			}
			prev = int32(i)
		}
	}
	if n != len(c.entries) {
		panic(errors.AssertionFailedf(
			"bufcache: %d of %d entries reachable from bucket lists", n, len(c.entries)))
	}
}

// debugString renders the buckets and their entries, head first, for tests.
func (c *Cache) debugString() string {
	c.stealMu.Lock()
	defer c.stealMu.Unlock()
	var sb strings.Builder
	for bi := range c.buckets {
		b := &c.buckets[bi]
		b.mu.Lock()
		fmt.Fprintf(&sb, "bucket %d:", bi)
		if b.head == -1 {
			sb.WriteString(" empty")
		}
		sb.WriteString("\n")
		for i := b.head; i != -1; i = c.entries[i].next {
			e := &c.entries[i]
			fmt.Fprintf(&sb, "  e%d: dev=%s block=%s refs=%d", i, e.dev, e.blockNum, e.ref.refs())
			if e.valid.Load() {
				sb.WriteString(" valid")
			}
			sb.WriteString("\n")
		}
		b.mu.Unlock()
	}
	return sb.String()
}
