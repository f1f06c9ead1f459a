// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bufcache

import (
	"github.com/cockroachdb/bufcache/blockdev"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// DeviceID identifies a device attached to a Cache. IDs are allocated by
// Attach and never reused, so an entry still labeled with a detached
// device's blocks can never be mistaken for a later attachment's.
//
// The zero DeviceID is reserved; freshly initialized entries carry it so
// that they can never collide with a real block identity.
type DeviceID uint64

// String implements fmt.Stringer.
func (id DeviceID) String() string {
	return redact.StringWithoutMarkers(id)
}

// SafeFormat implements redact.SafeFormatter.
func (id DeviceID) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%d", redact.SafeUint(uint64(id)))
}

// Handle binds a device to a Cache. Every block acquisition goes through a
// Handle, which supplies the device half of the (device, block number)
// identity as well as the Device that Load and Store perform I/O against.
//
// A Handle is safe for concurrent use.
type Handle struct {
	cache *Cache
	dev   blockdev.Device
	id    DeviceID
}

// Attach registers a device with the cache and returns a Handle for it. The
// device's block size must match the cache's. Any number of devices may be
// attached; their blocks compete for the one pool of buffers.
func (c *Cache) Attach(dev blockdev.Device) (*Handle, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if bs := dev.BlockSize(); bs != c.opts.BlockSize {
		return nil, errors.Newf(
			"bufcache: device block size %d does not match cache block size %d",
			bs, c.opts.BlockSize)
	}
	c.openHandles.Add(1)
	return &Handle{
		cache: c,
		dev:   dev,
		id:    DeviceID(c.idAlloc.Add(1)),
	}, nil
}

// ID returns the identity the cache assigned to the device at Attach.
func (h *Handle) ID() DeviceID { return h.id }

// Device returns the attached device.
func (h *Handle) Device() blockdev.Device { return h.dev }

// Acquire returns the buffer for the given block, with exclusive access.
// The buffer's contents are not necessarily current; use Load, or Read to
// acquire and load in one step.
//
// Acquire blocks while another goroutine holds the block's buffer. It is
// fatal for every buffer in the pool to be referenced when Acquire needs to
// recycle one; see Options.NumBufs.
//
// Acquire does not validate blockNum against the device geometry. An out of
// range block number is caught by Load or Store, not before.
func (h *Handle) Acquire(blockNum blockdev.BlockNum) *Buf {
	e := h.cache.acquire(h.id, blockNum)
	return &Buf{h: h, e: e}
}

// Read acquires the block's buffer and ensures it holds current contents,
// reading from the device if necessary. On error the buffer is released
// before returning.
func (h *Handle) Read(blockNum blockdev.BlockNum) (*Buf, error) {
	b := h.Acquire(blockNum)
	if err := b.Load(); err != nil {
		b.Release()
		return nil, err
	}
	return b, nil
}

// Close detaches the device. It is an error to close a handle while any of
// the device's blocks are still referenced, and the handle stays usable if
// that error is returned. Unreferenced entries for the device remain cached
// until recycled; they are unreachable, as device ids are not reused.
//
// Close does not close the underlying Device; the device is the caller's.
func (h *Handle) Close() error {
	if h.cache == nil {
		return errors.New("bufcache: handle is already closed")
	}
	if n := h.cache.deviceRefs(h.id); n != 0 {
		return errors.Newf(
			"bufcache: closing device %s with %d referenced buffers", h.id, n)
	}
	h.cache.openHandles.Add(-1)
	*h = Handle{}
	return nil
}
