// Copyright (c) 2016-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

// bytesPerKB is the fixed-point denominator of a FeeRate.
const bytesPerKB = 1000

// FeeRate is a fee rate expressed in shannons per 1000 bytes.  It is always
// derived from a fee and a size through NewFeeRate and never stored apart
// from them.
type FeeRate uint64

// NewFeeRate returns fee*1000/size, rounded down.  The intermediate product is
// computed in 256 bits so large capacities cannot wrap; a result that does not
// fit saturates at math.MaxUint64.  A zero size yields the maximum rate.
func NewFeeRate(fee uint64, size uint64) FeeRate {
	if size == 0 {
		return FeeRate(math.MaxUint64)
	}

	r := uint256.NewInt(fee)
	r.Mul(r, uint256.NewInt(bytesPerKB))
	r.Div(r, uint256.NewInt(size))
	if !r.IsUint64() {
		return FeeRate(math.MaxUint64)
	}
	return FeeRate(r.Uint64())
}

// Fee returns the minimum fee, rounded up, a transaction of the given size
// must pay to reach this rate.
func (r FeeRate) Fee(size uint64) uint64 {
	f := uint256.NewInt(uint64(r))
	f.Mul(f, uint256.NewInt(size))
	f.AddUint64(f, bytesPerKB-1)
	f.Div(f, uint256.NewInt(bytesPerKB))
	if !f.IsUint64() {
		return math.MaxUint64
	}
	return f.Uint64()
}

// String returns the rate with its unit.
func (r FeeRate) String() string {
	return fmt.Sprintf("%d shannons/KB", uint64(r))
}
