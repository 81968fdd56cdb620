// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"bytes"
	"fmt"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/btcsuite/cyclepool/chainhash"
	"github.com/btcsuite/cyclepool/wire"
)

// State is the lifecycle state of a pool entry.
type State uint8

// These constants define the lifecycle states.  The first four are resident
// states; the remaining ones are terminal and only ever reported.
const (
	// StateOrphan means at least one input is unknown to both the pool and
	// the chain.
	StateOrphan State = iota

	// StatePending means every input resolves but verification has not
	// completed.
	StatePending

	// StateGap means the transaction is verified but immature, or an
	// in-pool ancestor is not yet eligible.
	StateGap

	// StateEligible means the transaction may be selected for a block.
	StateEligible

	// StateCommitted means the transaction was included in a block.
	StateCommitted

	// StateRemoved means the transaction was dropped by eviction, expiry
	// or a failed deferred verification.
	StateRemoved

	// StateConflicted means the transaction lost a conflict to a
	// replacement or to a committed double spend.
	StateConflicted

	numStates
)

// numResidentStates is the number of states an entry may hold while stored.
const numResidentStates = int(StateEligible) + 1

var stateStrings = [numStates]string{
	StateOrphan:     "orphan",
	StatePending:    "pending",
	StateGap:        "gap",
	StateEligible:   "eligible",
	StateCommitted:  "committed",
	StateRemoved:    "removed",
	StateConflicted: "conflicted",
}

// String returns the lower case name of the state.
func (s State) String() string {
	if s < numStates {
		return stateStrings[s]
	}
	return fmt.Sprintf("unknown state (%d)", uint8(s))
}

// IsResident returns whether an entry in this state counts against the pool
// caps.
func (s State) IsResident() bool {
	return s <= StateEligible
}

// TxEntry is the pool's record of a resident transaction.  The size, fee and
// sequence number are fixed on admission; cycles are fixed by the first
// successful verification.  All mutable fields are guarded by the pool lock.
type TxEntry struct {
	tx       *wire.Tx
	hash     chainhash.Hash
	size     uint64
	fee      uint64
	feeRate  FeeRate
	cycles   uint64
	seq      uint64
	added    time.Time
	state    State
	verified bool
	indexed  bool

	// parents and children are the direct in-pool dependencies.  missing
	// holds the hashes of parents known to neither the pool nor the chain.
	parents  mapset.Set[chainhash.Hash]
	children mapset.Set[chainhash.Hash]
	missing  mapset.Set[chainhash.Hash]
}

func newTxEntry(tx *wire.Tx, fee uint64, seq uint64, added time.Time) *TxEntry {
	size := uint64(tx.SerializeSize())
	return &TxEntry{
		tx:       tx,
		hash:     *tx.Hash(),
		size:     size,
		fee:      fee,
		feeRate:  NewFeeRate(fee, size),
		seq:      seq,
		added:    added,
		parents:  mapset.NewThreadUnsafeSet[chainhash.Hash](),
		children: mapset.NewThreadUnsafeSet[chainhash.Hash](),
		missing:  mapset.NewThreadUnsafeSet[chainhash.Hash](),
	}
}

// desc returns an immutable snapshot of the entry.
func (e *TxEntry) desc() *TxDesc {
	parents := e.parents.ToSlice()
	sortHashes(parents)
	return &TxDesc{
		Tx:      e.tx,
		Hash:    e.hash,
		State:   e.state,
		Size:    e.size,
		Cycles:  e.cycles,
		Fee:     e.fee,
		FeeRate: e.feeRate,
		Seq:     e.seq,
		Added:   e.added,
		Parents: parents,
	}
}

// conflictInfo describes the entry as a replacement conflict.
func (e *TxEntry) conflictInfo() ConflictInfo {
	return ConflictInfo{
		Hash:    e.hash,
		FeeRate: e.feeRate,
		Size:    e.size,
		Cycles:  e.cycles,
		Fee:     e.fee,
	}
}

// TxDesc is a descriptor of a pool entry as of the moment it was taken.
// Descriptors are never modified after creation, so they may be shared
// freely between goroutines.
type TxDesc struct {
	Tx      *wire.Tx
	Hash    chainhash.Hash
	State   State
	Size    uint64
	Cycles  uint64
	Fee     uint64
	FeeRate FeeRate
	Seq     uint64
	Added   time.Time

	// Parents lists the direct in-pool parents in ascending hash order.
	Parents []chainhash.Hash
}

// RemovedTx describes a transaction that left the pool for a reason other
// than being committed.
type RemovedTx struct {
	Hash   chainhash.Hash
	Reason State
	Detail string
}

// sortHashes sorts hashes in ascending byte order.
func sortHashes(hashes []chainhash.Hash) {
	slices.SortFunc(hashes, func(a, b chainhash.Hash) int {
		return bytes.Compare(a[:], b[:])
	})
}
