// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bufcache

import (
	"github.com/cockroachdb/bufcache/blockdev"
	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
)

// Buf is an exclusive reference to one block's buffer. At most one live Buf
// exists per entry; until Release, the holding goroutine may read and write
// Data freely and no other acquisition of the block can proceed.
//
// A Buf is meant to be held briefly, for the duration of one read or
// update of the block. It is not safe for concurrent use; hand-off between
// goroutines requires external synchronization.
type Buf struct {
	h *Handle
	e *entry
}

func (b *Buf) mustEntry() *entry {
	if b == nil || b.e == nil {
		panic("bufcache: use of released buffer")
	}
	return b.e
}

// BlockNum returns the number of the block the buffer caches.
func (b *Buf) BlockNum() blockdev.BlockNum {
	return b.mustEntry().blockNum
}

// Device returns the id of the device the block belongs to.
func (b *Buf) Device() DeviceID {
	return b.mustEntry().dev
}

// Data returns the buffer contents, one full block. The slice remains owned
// by the cache and must not be used after Release.
func (b *Buf) Data() []byte {
	return b.mustEntry().data
}

// Valid reports whether the buffer holds the block's current contents. A
// freshly recycled buffer is invalid until the first Load or Store.
func (b *Buf) Valid() bool {
	return b.mustEntry().valid.Load()
}

// Load ensures the buffer holds the block's contents, reading from the
// device only if the buffer is not already valid. On error the buffer stays
// invalid and unmodified data is not guaranteed.
func (b *Buf) Load() error {
	e := b.mustEntry()
	if e.valid.Load() {
		return nil
	}
	start := crtime.NowMono()
	err := b.h.dev.ReadBlock(e.blockNum, e.data)
	if m := b.h.cache.opts.ReadLatency; m != nil {
		m.Observe(float64(start.Elapsed()))
	}
	if err != nil {
		return errors.Wrapf(err, "bufcache: load dev=%s block=%s", e.dev, e.blockNum)
	}
	e.valid.Store(true)
	return nil
}

// Store writes the buffer's contents to the device. The write is
// unconditional; Store is how a caller persists mutations made through
// Data. On success the buffer is valid: a buffer written to the device
// matches the device. On error validity is unchanged.
func (b *Buf) Store() error {
	e := b.mustEntry()
	start := crtime.NowMono()
	err := b.h.dev.WriteBlock(e.blockNum, e.data)
	if m := b.h.cache.opts.WriteLatency; m != nil {
		m.Observe(float64(start.Elapsed()))
	}
	if err != nil {
		return errors.Wrapf(err, "bufcache: store dev=%s block=%s", e.dev, e.blockNum)
	}
	e.valid.Store(true)
	return nil
}

// Release gives up exclusive access and drops the Buf's reference, waking
// one goroutine waiting to acquire the block. If that was the last
// reference, the entry moves to the front of its bucket's list; recycling
// prefers entries toward the tails, so recently used blocks survive longest.
//
// The Buf must not be used after Release; accessors on a released Buf panic.
// Releasing twice panics.
func (b *Buf) Release() {
	e := b.mustEntry()
	b.e = nil
	c := b.h.cache

	// Hand the token over before touching the reference count so a waiter
	// can proceed immediately. The entry cannot be recycled in the window
	// between the two steps: our reference is still counted.
	e.lock.unlock()

	bkt := &c.buckets[e.bucket]
	bkt.mu.Lock()
	if e.ref.release() {
		c.moveToFront(e)
	}
	bkt.mu.Unlock()
	c.maybeCheckInvariants()
}

// Pin adds a reference that survives Release, keeping the entry's identity
// and contents out of recycling's reach until a matching Unpin. Pin is the
// tool of write-ahead schemes: a block mutated and released can be pinned to
// guarantee the buffer is still intact when a later commit step re-acquires
// it.
//
// The matching Unpin is made through whatever Buf holds the block at that
// time; pins are counted on the entry, not on the Buf.
func (b *Buf) Pin() {
	e := b.mustEntry()
	c := b.h.cache
	bkt := &c.buckets[e.bucket]
	bkt.mu.Lock()
	e.ref.acquire()
	bkt.mu.Unlock()
}

// Unpin drops a reference added by Pin. It panics if no unmatched Pin
// remains, rather than eat the reference held by the live Buf itself.
func (b *Buf) Unpin() {
	e := b.mustEntry()
	c := b.h.cache
	bkt := &c.buckets[e.bucket]
	bkt.mu.Lock()
	if e.ref.refs() <= 1 {
		bkt.mu.Unlock()
		panic("bufcache: Unpin without a matching Pin")
	}
	e.ref.release()
	bkt.mu.Unlock()
}
