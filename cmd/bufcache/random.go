// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/bufcache/internal/randvar"
	"github.com/cockroachdb/bufcache/internal/rate"
)

var randVarRE = regexp.MustCompile(`^(?:(uniform|zipf):)?(\d+)(?:-(\d+))?$`)

func parseRandVarSpec(d string) (randvar.Static, error) {
	m := randVarRE.FindStringSubmatch(d)
	if m == nil {
		return nil, fmt.Errorf("invalid random var spec: %s", d)
	}

	min, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, err
	}
	max := min
	if m[3] != "" {
		max, err = strconv.Atoi(m[3])
		if err != nil {
			return nil, err
		}
	}

	switch strings.ToLower(m[1]) {
	case "", "uniform":
		return randvar.NewUniform(nil, uint64(min), uint64(max)), nil
	case "zipf":
		return randvar.NewZipf(nil, uint64(min), uint64(max), 0.99)
	default:
		return nil, fmt.Errorf("unknown distribution: %s", m[1])
	}
}

// parseRateSpec parses a rate limit of the form <randvar>[/<secs>]: a random
// variable for the ops/sec limit, and an optional period with which to redraw
// it.
func parseRateSpec(v string) (randvar.Static, time.Duration, error) {
	parts := strings.Split(v, "/")
	if len(parts) == 0 || len(parts) > 2 {
		return nil, 0, fmt.Errorf("invalid max-ops-per-sec spec: %s", v)
	}
	r, err := parseRandVarSpec(parts[0])
	if err != nil {
		return nil, 0, err
	}
	// Don't fluctuate by default.
	fluctuateDuration := time.Duration(0)
	if len(parts) == 2 {
		fluctuateDurationFloat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, 0, err
		}
		fluctuateDuration = time.Duration(fluctuateDurationFloat) * time.Second
	}
	return r, fluctuateDuration, nil
}

func newFluctuatingRateLimiter(maxOpsPerSec string) (*rate.Limiter, error) {
	rateDist, fluctuateDuration, err := parseRateSpec(maxOpsPerSec)
	if err != nil {
		return nil, err
	}
	limiter := rate.NewLimiter(float64(rateDist.Uint64()), 1)
	if fluctuateDuration != 0 {
		go func(limiter *rate.Limiter) {
			ticker := time.NewTicker(fluctuateDuration)
			for range ticker.C {
				limiter.SetRate(float64(rateDist.Uint64()))
			}
		}(limiter)
	}
	return limiter, nil
}

// fillRandom fills data with random bytes that compress to roughly
// 1/targetCompressionRatio of their size. A ratio of 1 produces
// incompressible data.
func fillRandom(r *rand.Rand, data []byte, targetCompressionRatio float64) {
	uniqueSize := int(float64(len(data)) / targetCompressionRatio)
	if uniqueSize < 1 {
		uniqueSize = 1
	}
	offset := 0
	for offset+8 <= uniqueSize {
		binary.LittleEndian.PutUint64(data[offset:], r.Uint64())
		offset += 8
	}
	word := r.Uint64()
	for offset < uniqueSize {
		data[offset] = byte(word)
		word >>= 8
		offset++
	}
	for offset < len(data) {
		data[offset] = data[offset-uniqueSize]
		offset++
	}
}
