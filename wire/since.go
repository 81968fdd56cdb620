// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "fmt"

// Since is the maturity lock carried by every transaction input.  A zero
// value means the input carries no lock.
//
// Layout (most significant bit first):
//
//	bit  63     relative flag
//	bits 62..61 metric (0 = block number, 1 = epoch number)
//	bits 60..56 reserved, must be zero
//	bits 55..0  value
type Since uint64

// SinceMetric identifies the unit a Since value is expressed in.
type SinceMetric uint8

const (
	// SinceMetricBlock expresses the lock as a block number.
	SinceMetricBlock SinceMetric = 0

	// SinceMetricEpoch expresses the lock as an epoch number.
	SinceMetricEpoch SinceMetric = 1
)

const (
	sinceRelativeFlag = uint64(1) << 63
	sinceMetricShift  = 61
	sinceMetricMask   = uint64(0x3) << sinceMetricShift
	sinceReservedMask = uint64(0x1f) << 56
	sinceValueMask    = (uint64(1) << 56) - 1

	// MaxSinceValue is the largest value a Since lock can carry.
	MaxSinceValue = sinceValueMask
)

// NewSinceBlock returns an absolute lock that matures once the chain
// reaches the given block number.
func NewSinceBlock(height uint64) Since {
	return Since(height & sinceValueMask)
}

// NewSinceEpoch returns an absolute lock that matures once the chain
// reaches the given epoch.
func NewSinceEpoch(epoch uint64) Since {
	return Since(uint64(SinceMetricEpoch)<<sinceMetricShift |
		epoch&sinceValueMask)
}

// IsZero returns whether the input carries no lock at all.
func (s Since) IsZero() bool {
	return s == 0
}

// IsRelative reports whether the lock is relative to the commitment of the
// input being spent.
func (s Since) IsRelative() bool {
	return uint64(s)&sinceRelativeFlag != 0
}

// Metric returns the unit of the lock.
func (s Since) Metric() SinceMetric {
	return SinceMetric((uint64(s) & sinceMetricMask) >> sinceMetricShift)
}

// Value returns the lock value in units of Metric.
func (s Since) Value() uint64 {
	return uint64(s) & sinceValueMask
}

// IsWellFormed reports whether the reserved bits are clear and the metric is
// known.
func (s Since) IsWellFormed() bool {
	if uint64(s)&sinceReservedMask != 0 {
		return false
	}
	m := s.Metric()
	return m == SinceMetricBlock || m == SinceMetricEpoch
}

// String returns a human-readable representation of the lock.
func (s Since) String() string {
	if s.IsZero() {
		return "none"
	}
	kind := "absolute"
	if s.IsRelative() {
		kind = "relative"
	}
	unit := "block"
	if s.Metric() == SinceMetricEpoch {
		unit = "epoch"
	}
	return fmt.Sprintf("%s %s %d", kind, unit, s.Value())
}
