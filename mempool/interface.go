// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"context"
	"fmt"

	"github.com/btcsuite/cyclepool/chainhash"
	"github.com/btcsuite/cyclepool/wire"
)

// ChainContext describes the chain tip a transaction is verified and matured
// against.  Verification results are only reused while Epoch is unchanged.
type ChainContext struct {
	Height  uint64
	Epoch   uint64
	TipHash chainhash.Hash
}

// String returns a short description of the context for logging.
func (c ChainContext) String() string {
	return fmt.Sprintf("height %d epoch %d (%v)", c.Height, c.Epoch,
		c.TipHash)
}

// Verifier executes the scripts of a transaction and reports the cycles the
// execution consumed.  Implementations must be safe for concurrent use.
//
// maxCycles is the per-transaction limit.  A verifier that aborts early
// because of it should return an error wrapping ErrExceededMaxCycles.  Any
// other non-nil error marks the transaction invalid in the given context.
type Verifier interface {
	Verify(ctx context.Context, tx *wire.Tx, chain ChainContext,
		maxCycles uint64) (uint64, error)
}

// FeeCalculator prices a transaction, typically as the sum of the input
// capacities minus the sum of the output capacities.
type FeeCalculator interface {
	Fee(tx *wire.Tx) (uint64, error)
}

// ChainView is the pool's read-only window onto the chain state.
type ChainView interface {
	// Tip returns the context of the current best block.
	Tip() ChainContext

	// HaveOutput reports whether the referenced output exists unspent in
	// the chain state.
	HaveOutput(op wire.OutPoint) bool
}

// MaturityPolicy decides whether a verified transaction may be included in
// a block built on top of the given chain tip.
type MaturityPolicy interface {
	IsMature(tx *wire.Tx, chain ChainContext) bool
}

// ConflictInfo describes a resident transaction that spends an input also
// spent by a replacement candidate.
type ConflictInfo struct {
	Hash    chainhash.Hash
	FeeRate FeeRate
	Size    uint64
	Cycles  uint64
	Fee     uint64
}

// ReplacementPolicy decides whether a candidate may replace the resident
// transactions it conflicts with.
type ReplacementPolicy interface {
	// Name identifies the policy in logs and statistics.
	Name() string

	// AllowReplacement returns nil when the candidate wins against every
	// conflict, and a descriptive error otherwise.
	AllowReplacement(candidate FeeRate, conflicts []ConflictInfo) error
}
