// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bufcache

import "github.com/cockroachdb/redact"

// Metrics holds metrics for the cache.
type Metrics struct {
	// Hits counts acquisitions satisfied by an entry already labeled with
	// the requested block, whether or not the entry was referenced at the
	// time.
	Hits int64

	// Misses counts acquisitions that found no entry for the block and went
	// through the recycling path.
	Misses int64

	// Steals counts free entries relabeled for a new block. Steals can lag
	// Misses: when two goroutines race to acquire the same absent block, the
	// loser of the steal mutex finds the winner's entry on re-check and gets
	// by without a steal of its own.
	Steals int64

	// Relocations counts the subset of Steals where the recycled entry
	// belonged to a different bucket and had to be relinked.
	Relocations int64

	// Active is the number of entries with a non-zero reference count at the
	// time Metrics was called.
	Active int64

	// Valid is the number of entries whose buffer held current block
	// contents at the time Metrics was called.
	Valid int64
}

// Acquires returns the total number of acquisitions.
func (m Metrics) Acquires() int64 {
	return m.Hits + m.Misses
}

// String implements fmt.Stringer.
func (m Metrics) String() string {
	return redact.StringWithoutMarkers(m)
}

// SafeFormat implements redact.SafeFormatter.
func (m Metrics) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("acquires: %d (%d hits, %d misses) steals: %d (%d moved) active: %d valid: %d",
		redact.Safe(m.Acquires()), redact.Safe(m.Hits), redact.Safe(m.Misses),
		redact.Safe(m.Steals), redact.Safe(m.Relocations),
		redact.Safe(m.Active), redact.Safe(m.Valid))
}
