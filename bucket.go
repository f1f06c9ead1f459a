// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bufcache

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/bufcache/blockdev"
)

// bucket is one stripe of the cache. A block's home bucket is determined by
// its block number alone, so acquisitions of different blocks usually contend
// on different mutexes. The device id deliberately does not participate:
// distinct devices' entries for the same block number share a bucket, and the
// list scan distinguishes them by full identity.
type bucket struct {
	mu sync.Mutex

	// head indexes the first entry of the bucket's list in the cache's entry
	// arena, or -1 if the bucket is empty. The list is ordered most recently
	// released first, so the recycling scan encountering the tail end sees
	// the coldest entries. Guarded by mu.
	head int32

	hits   atomic.Int64
	misses atomic.Int64
}

// bucketOf returns the index of blockNum's home bucket.
func (c *Cache) bucketOf(blockNum blockdev.BlockNum) int32 {
	return int32(uint64(blockNum) % uint64(len(c.buckets)))
}

// findLocked scans bucket bi for an entry with the given identity. Identity
// is independent of validity and of the reference count: a free entry still
// labeled with the block is a hit, and whether its contents are current is
// Load's problem. The caller holds the bucket's mutex.
func (c *Cache) findLocked(bi int32, dev DeviceID, blockNum blockdev.BlockNum) *entry {
	for i := c.buckets[bi].head; i != -1; i = c.entries[i].next {
		e := &c.entries[i]
		if e.dev == dev && e.blockNum == blockNum {
			return e
		}
	}
	return nil
}

// pushFront links e at the head of bucket bi's list and records the
// assignment in e.bucket. The caller holds bucket bi's mutex; if e is moving
// between buckets the caller also holds the steal mutex and the old bucket's
// mutex, and has already unlinked e.
func (c *Cache) pushFront(bi int32, e *entry) {
	b := &c.buckets[bi]
	e.prev = -1
	e.next = b.head
	if b.head != -1 {
		c.entries[b.head].prev = e.idx
	}
	b.head = e.idx
	e.bucket = bi
}

// unlink removes e from its bucket's list. The caller holds the bucket's
// mutex.
func (c *Cache) unlink(e *entry) {
	b := &c.buckets[e.bucket]
	if e.prev != -1 {
		c.entries[e.prev].next = e.next
	} else {
		b.head = e.next
	}
	if e.next != -1 {
		c.entries[e.next].prev = e.prev
	}
	e.prev, e.next = -1, -1
}

// moveToFront relinks e at the head of its bucket's list. The caller holds
// the bucket's mutex.
func (c *Cache) moveToFront(e *entry) {
	bi := e.bucket
	if c.buckets[bi].head == e.idx {
		return
	}
	c.unlink(e)
	c.pushFront(bi, e)
}
