// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package randvar provides random variables for workload generation.
package randvar

// Static is the interface for a random variable whose distribution is fixed
// at construction.
type Static interface {
	Uint64() uint64
}

// Dynamic is the interface for a random variable whose maximum value can grow
// over time.
type Dynamic interface {
	Static
	IncMax(delta int)
}

var _ Static = (*Zipf)(nil)
var _ Dynamic = (*Uniform)(nil)
