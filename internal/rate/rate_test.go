// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package rate

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock implements the now/sleep functions used by
// NewLimiterWithCustomTime, advancing a virtual clock instead of sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLimiterWait(t *testing.T) {
	var clock fakeClock
	clock.now = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	start := clock.Now()

	l := NewLimiterWithCustomTime(100, 10, clock.Now, clock.Sleep)

	// The initial burst is satisfied without sleeping.
	l.Wait(10)
	require.Equal(t, time.Duration(0), clock.Now().Sub(start))

	// 50 more tokens at 100 tokens/sec take about half a second.
	for i := 0; i < 5; i++ {
		l.Wait(10)
	}
	elapsed := clock.Now().Sub(start)
	require.GreaterOrEqual(t, elapsed, 490*time.Millisecond)
	require.LessOrEqual(t, elapsed, 600*time.Millisecond)
}

func TestLimiterRemove(t *testing.T) {
	var clock fakeClock
	clock.now = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	start := clock.Now()

	l := NewLimiterWithCustomTime(100, 10, clock.Now, clock.Sleep)

	// Removing tokens puts the bucket into debt; the next Wait pays it off.
	l.Remove(100)
	l.Wait(1)
	elapsed := clock.Now().Sub(start)
	require.GreaterOrEqual(t, elapsed, 900*time.Millisecond)
	require.LessOrEqual(t, elapsed, time.Second)
}

func TestLimiterSetRate(t *testing.T) {
	var clock fakeClock
	clock.now = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	l := NewLimiterWithCustomTime(100, 10, clock.Now, clock.Sleep)
	require.Equal(t, float64(100), l.Rate())

	// Drain the initial burst, then refill it once at 100 tokens/sec.
	l.Wait(10)
	start := clock.Now()
	l.Wait(10)
	elapsed := clock.Now().Sub(start)
	require.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
	require.LessOrEqual(t, elapsed, 150*time.Millisecond)

	l.SetRate(200)
	require.Equal(t, float64(200), l.Rate())

	// The same refill at the doubled rate takes half as long.
	start = clock.Now()
	l.Wait(10)
	elapsed = clock.Now().Sub(start)
	require.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	require.LessOrEqual(t, elapsed, 100*time.Millisecond)
}
