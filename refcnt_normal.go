// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build !tracing
// +build !tracing

package bufcache

import (
	"fmt"
	"sync/atomic"
)

// refcnt provides an atomic reference count, along with a tracing facility
// for debugging logic errors in manipulating the reference count. This
// version is used when the "tracing" build tag is not enabled. See
// refcnt_tracing.go for the "tracing" build tag version.
//
// The count is read without any lock by the recycling scan, so loads and
// stores must be atomic. Transitions are only valid under the entry's bucket
// mutex: 0 -> 1 revives a free entry, and the final 1 -> 0 frees it.
type refcnt struct {
	val atomic.Int32
}

// init initializes the reference count to the specified value.
func (v *refcnt) init(val int32) {
	v.val.Store(val)
}

func (v *refcnt) refs() int32 {
	return v.val.Load()
}

func (v *refcnt) acquire() {
	switch n := v.val.Add(1); {
	case n <= 0:
		panic(fmt.Sprintf("bufcache: inconsistent reference count: %d", n))
	}
}

func (v *refcnt) release() bool {
	switch n := v.val.Add(-1); {
	case n < 0:
		panic(fmt.Sprintf("bufcache: inconsistent reference count: %d", n))
	default:
		return n == 0
	}
}

func (v *refcnt) trace(msg string) {
}

func (v *refcnt) traces() string {
	return ""
}

// Silence unused warning.
var _ = (*refcnt)(nil).traces
