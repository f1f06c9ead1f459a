// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package errordev wraps a blockdev.Device with error injection, allowing
// tests to exercise I/O failure paths deterministically.
package errordev

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/bufcache/blockdev"
	"github.com/cockroachdb/errors"
)

// ErrInjected is the error returned from all injected faults.
var ErrInjected = errors.New("injected error")

// Op is an enum describing the type of operation performed on the device.
type Op int

const (
	// OpRead describes a block read operation.
	OpRead Op = iota
	// OpWrite describes a block write operation.
	OpWrite
	// OpSync describes a sync operation.
	OpSync
)

// OpKind returns the operation's kind.
func (o Op) OpKind() OpKind {
	switch o {
	case OpRead:
		return OpKindRead
	case OpWrite, OpSync:
		return OpKindWrite
	default:
		panic(fmt.Sprintf("unrecognized op %v\n", o))
	}
}

// String implements fmt.Stringer.
func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpSync:
		return "sync"
	default:
		return "unknown"
	}
}

// OpKind is an enum describing whether an operation is a read or write
// operation.
type OpKind int

const (
	// OpKindRead describes read operations.
	OpKindRead OpKind = iota
	// OpKindWrite describes write operations.
	OpKindWrite
)

// Injector injects errors into device operations.
type Injector interface {
	// MaybeError is invoked before an operation is executed. It is passed an
	// enum indicating the type of operation and the subject block number.
	// Sync operations pass block zero. A non-nil return aborts the operation
	// with that error.
	MaybeError(op Op, blockNum blockdev.BlockNum) error
}

// InjectorFunc implements the Injector interface for a function with
// MaybeError's signature.
type InjectorFunc func(Op, blockdev.BlockNum) error

// MaybeError implements the Injector interface.
func (f InjectorFunc) MaybeError(op Op, blockNum blockdev.BlockNum) error {
	return f(op, blockNum)
}

// Always returns an injector that always injects an error.
func Always() Injector {
	return InjectorFunc(func(Op, blockdev.BlockNum) error { return ErrInjected })
}

// Any returns an injector that injects an error if any of the provided
// injectors inject an error.
func Any(injectors ...Injector) Injector {
	return InjectorFunc(func(op Op, blockNum blockdev.BlockNum) error {
		for _, inj := range injectors {
			if err := inj.MaybeError(op, blockNum); err != nil {
				return err
			}
		}
		return nil
	})
}

// OnIndex constructs an injector that defers to next on the (n+1)-th
// invocation of its MaybeError function and is otherwise inert.
func OnIndex(index int32, next Injector) *InjectIndex {
	ii := &InjectIndex{next: next}
	ii.index.Store(index)
	return ii
}

// InjectIndex implements Injector, injecting an error at a specific index.
type InjectIndex struct {
	index atomic.Int32
	next  Injector
}

// Index returns the index at which the error will be injected.
func (ii *InjectIndex) Index() int32 { return ii.index.Load() }

// SetIndex sets the index at which the error will be injected.
func (ii *InjectIndex) SetIndex(v int32) { ii.index.Store(v) }

// MaybeError implements the Injector interface.
func (ii *InjectIndex) MaybeError(op Op, blockNum blockdev.BlockNum) error {
	if ii.index.Add(-1) != -1 {
		return nil
	}
	return ii.next.MaybeError(op, blockNum)
}

// OnKind returns an injector that defers to next only on operations of the
// given kind.
func OnKind(kind OpKind, next Injector) Injector {
	return InjectorFunc(func(op Op, blockNum blockdev.BlockNum) error {
		if op.OpKind() != kind {
			return nil
		}
		return next.MaybeError(op, blockNum)
	})
}

// OnBlock returns an injector that defers to next only on operations
// targeting the given block.
func OnBlock(blockNum blockdev.BlockNum, next Injector) Injector {
	return InjectorFunc(func(op Op, n blockdev.BlockNum) error {
		if op == OpSync || n != blockNum {
			return nil
		}
		return next.MaybeError(op, n)
	})
}

// WithProbability returns an injector that injects an error with the
// provided probability on operations of the given kind. p should be within
// the range [0.0,1.0].
func WithProbability(kind OpKind, p float64) Injector {
	mu := new(sync.Mutex)
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	return InjectorFunc(func(op Op, _ blockdev.BlockNum) error {
		mu.Lock()
		defer mu.Unlock()
		if op.OpKind() == kind && rng.Float64() < p {
			return errors.WithStack(ErrInjected)
		}
		return nil
	})
}

// Device wraps a blockdev.Device, consulting an Injector before every read,
// write, and sync.
type Device struct {
	dev blockdev.Device
	inj Injector
}

var _ blockdev.Device = (*Device)(nil)

// Wrap wraps an existing device with error injection.
func Wrap(dev blockdev.Device, inj Injector) *Device {
	return &Device{dev: dev, inj: inj}
}

// Unwrap returns the device underlying the error-injecting device.
func (d *Device) Unwrap() blockdev.Device {
	return d.dev
}

// BlockSize implements blockdev.Device.
func (d *Device) BlockSize() int { return d.dev.BlockSize() }

// NumBlocks implements blockdev.Device.
func (d *Device) NumBlocks() uint64 { return d.dev.NumBlocks() }

// ReadBlock implements blockdev.Device.
func (d *Device) ReadBlock(blockNum blockdev.BlockNum, p []byte) error {
	if err := d.inj.MaybeError(OpRead, blockNum); err != nil {
		return err
	}
	return d.dev.ReadBlock(blockNum, p)
}

// WriteBlock implements blockdev.Device.
func (d *Device) WriteBlock(blockNum blockdev.BlockNum, p []byte) error {
	if err := d.inj.MaybeError(OpWrite, blockNum); err != nil {
		return err
	}
	return d.dev.WriteBlock(blockNum, p)
}

// Sync implements blockdev.Device.
func (d *Device) Sync() error {
	if err := d.inj.MaybeError(OpSync, 0); err != nil {
		return err
	}
	return d.dev.Sync()
}

// Close implements blockdev.Device. Close is never injected.
func (d *Device) Close() error {
	return d.dev.Close()
}
