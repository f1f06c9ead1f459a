// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package humanize provides compact human-readable formatting of counts and
// byte sizes.
package humanize

import (
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/redact"
)

// Bytes formats byte sizes: 1B, 512B, 4KB, 1.5GB.
var Bytes = config{bytes: true}

// Count formats unitless quantities: 42, 5K, 1.5M.
var Count = config{}

type config struct {
	bytes bool
}

// Int64 formats the value.
func (c config) Int64(value int64) FormattedString {
	if c.bytes {
		return FormattedString(crhumanize.Bytes(value, crhumanize.Compact, crhumanize.OmitI))
	}
	return FormattedString(crhumanize.Count(value, crhumanize.Compact))
}

// Uint64 formats the value.
func (c config) Uint64(value uint64) FormattedString {
	if c.bytes {
		return FormattedString(crhumanize.Bytes(value, crhumanize.Compact, crhumanize.OmitI))
	}
	return FormattedString(crhumanize.Count(value, crhumanize.Compact))
}

// FormattedString is a human-readable value that is safe to log unredacted.
type FormattedString string

var _ redact.SafeValue = FormattedString("")

// SafeValue implements redact.SafeValue.
func (fs FormattedString) SafeValue() {}

// String implements fmt.Stringer.
func (fs FormattedString) String() string { return string(fs) }
