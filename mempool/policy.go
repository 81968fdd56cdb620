// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"

	"github.com/btcsuite/cyclepool/wire"
)

// StrictFeeRateReplacement admits a replacement only when its fee rate is
// strictly greater than the fee rate of every transaction it conflicts with.
type StrictFeeRateReplacement struct{}

// Ensure StrictFeeRateReplacement implements the ReplacementPolicy interface.
var _ ReplacementPolicy = StrictFeeRateReplacement{}

// Name returns the policy name.
func (StrictFeeRateReplacement) Name() string {
	return "strict-feerate"
}

// AllowReplacement implements ReplacementPolicy.
func (StrictFeeRateReplacement) AllowReplacement(candidate FeeRate,
	conflicts []ConflictInfo) error {

	for _, c := range conflicts {
		if candidate <= c.FeeRate {
			return fmt.Errorf("fee rate %v does not exceed %v of "+
				"conflicting transaction %v", candidate, c.FeeRate,
				c.Hash)
		}
	}
	return nil
}

// NoReplacement rejects every replacement.
type NoReplacement struct{}

// Name returns the policy name.
func (NoReplacement) Name() string {
	return "none"
}

// AllowReplacement implements ReplacementPolicy.
func (NoReplacement) AllowReplacement(_ FeeRate, conflicts []ConflictInfo) error {
	if len(conflicts) == 0 {
		return nil
	}
	return fmt.Errorf("replacement disabled, input already spent by %v",
		conflicts[0].Hash)
}

// SinceMaturity evaluates the absolute since locks of a transaction's inputs.
// A block-number lock is satisfied once the next block height reaches its
// value and an epoch lock once the tip epoch reaches it.  Relative locks
// depend on the age of the consumed output, which is not visible to the pool,
// and are left to the verifier.
type SinceMaturity struct{}

// Ensure SinceMaturity implements the MaturityPolicy interface.
var _ MaturityPolicy = SinceMaturity{}

// IsMature implements MaturityPolicy.
func (SinceMaturity) IsMature(tx *wire.Tx, chain ChainContext) bool {
	for _, txIn := range tx.MsgTx().TxIn {
		since := txIn.Since
		if since.IsZero() || since.IsRelative() {
			continue
		}
		switch since.Metric() {
		case wire.SinceMetricBlock:
			if chain.Height+1 < since.Value() {
				return false
			}
		case wire.SinceMetricEpoch:
			if chain.Epoch < since.Value() {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// AlwaysMature treats every verified transaction as mature.
type AlwaysMature struct{}

// IsMature implements MaturityPolicy.
func (AlwaysMature) IsMature(*wire.Tx, ChainContext) bool {
	return true
}
