// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bufcache

import (
	"sync/atomic"

	"github.com/cockroachdb/bufcache/blockdev"
)

// entry is a single fixed-size buffer in the pool. Entries are allocated once
// in a flat arena at cache construction and recycled thereafter; an entry is
// never freed, only relabeled to hold a different device block.
type entry struct {
	// dev and blockNum name the device block the buffer holds, or held:
	// identity survives the reference count dropping to zero so a later
	// acquisition of the same block can find it without touching the device.
	// Guarded by the mutex of the bucket the entry is assigned to.
	dev      DeviceID
	blockNum blockdev.BlockNum

	// valid reports whether data holds the block's current contents. Load
	// and Store set it while the entry's exclusive token is held; relabeling
	// clears it. Atomic so that Metrics and debug dumps can observe it
	// without the token.
	valid atomic.Bool

	// ref counts outstanding reservations: one for a live Buf plus one per
	// unmatched Pin. A non-zero count pins the entry's identity, bucket
	// assignment and data. Transitions happen under the entry's bucket
	// mutex; the recycling scan reads the count without any lock.
	ref refcnt

	// lock is the exclusive-access token for data. It is acquired without
	// any bucket mutex held, after ref has been raised.
	lock sleepLock

	// data is a block-sized window into the cache's slab.
	data []byte

	// idx is the entry's own position in the arena. Immutable.
	idx int32

	// bucket is the index of the bucket whose list the entry is on. Written
	// only under the steal mutex together with the affected bucket mutexes;
	// read under the entry's bucket mutex, or through a Buf, whose
	// reservation pins the assignment.
	bucket int32

	// prev and next link the entry into its bucket's list, most recently
	// released first, -1 terminated. Guarded by the bucket's mutex.
	prev, next int32
}

// relabel points a free entry at a new device block, dropping whatever it
// cached before. The caller holds the steal mutex and the entry's bucket
// mutex, and the reference count must be zero.
func (e *entry) relabel(dev DeviceID, blockNum blockdev.BlockNum) {
	e.dev = dev
	e.blockNum = blockNum
	e.valid.Store(false)
	e.ref.init(1)
}
