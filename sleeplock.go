// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bufcache

import "sync"

// sleepLock is the exclusive-access token protecting an entry's data. Unlike
// the bucket mutexes, which guard metadata for short critical sections, a
// sleepLock is held across device I/O and arbitrary caller logic, so waiters
// suspend on a condition variable rather than spin.
//
// A sleepLock is acquired only after the holder has reserved the entry by
// raising its reference count; the reservation is what keeps the entry's
// identity stable while the holder sleeps.
type sleepLock struct {
	mu struct {
		sync.Mutex
		cond   sync.Cond
		locked bool
	}
}

func (l *sleepLock) init() {
	l.mu.cond.L = &l.mu.Mutex
}

// lock blocks until the token is free and takes it.
func (l *sleepLock) lock() {
	l.mu.Lock()
	for l.mu.locked {
		l.mu.cond.Wait()
	}
	l.mu.locked = true
	l.mu.Unlock()
}

// unlock releases the token and wakes one waiter. It panics if the token is
// not held; continuing would let two goroutines modify the buffer at once.
func (l *sleepLock) unlock() {
	l.mu.Lock()
	if !l.mu.locked {
		l.mu.Unlock()
		panic("bufcache: unlock of an unheld buffer lock")
	}
	l.mu.locked = false
	l.mu.cond.Signal()
	l.mu.Unlock()
}

// held reports whether some goroutine currently holds the token. It cannot
// attribute the token to a particular goroutine; it exists for assertions.
func (l *sleepLock) held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mu.locked
}
