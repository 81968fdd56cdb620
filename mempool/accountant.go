// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"

	"github.com/btcsuite/cyclepool/chainhash"
)

// resourceTotals is the summed size and cycles of a set of entries.
type resourceTotals struct {
	size   uint64
	cycles uint64
}

func (t resourceTotals) String() string {
	return fmt.Sprintf("%d bytes, %d cycles", t.size, t.cycles)
}

// accountant tracks the resources consumed by resident entries against the
// configured caps and plans the evictions needed to stay within them.
type accountant struct {
	maxSize   uint64
	maxCycles uint64
	totals    resourceTotals
}

func (a *accountant) within(t resourceTotals) bool {
	return t.size <= a.maxSize && t.cycles <= a.maxCycles
}

func (a *accountant) add(size, cycles uint64) {
	a.totals.size += size
	a.totals.cycles += cycles
}

func (a *accountant) sub(size, cycles uint64) {
	a.totals.size -= size
	a.totals.cycles -= cycles
}

// evictionRequest describes a pending change the caps must absorb.
type evictionRequest struct {
	// projected is the totals once the change is applied, before any
	// eviction.
	projected resourceTotals

	// leaving are entries the change removes anyway.
	leaving map[chainhash.Hash]struct{}

	// protected are entries that must survive, namely the ancestors of the
	// candidate and the candidate itself when it is already resident.
	protected map[chainhash.Hash]struct{}

	// candidate carries the ranking key of the transaction causing the
	// change.  Nil when no transaction is being admitted.
	candidate *TxDesc
}

// planEviction returns the entries to remove, in removal order, so that the
// projected totals fit the caps.  Only leaves, entries without resident
// descendants, are ever evicted.  The lowest ranked leaf goes first and the
// leaves it exposes are considered again, so an entry never leaves while a
// lower ranked leaf remains.
//
// ErrPoolFull is returned when the candidate ranks below the next leaf that
// would have to go, when that leaf is protected, or when nothing is left to
// evict.
func (a *accountant) planEviction(store *txStore, idx *feeIndex,
	req *evictionRequest) ([]chainhash.Hash, error) {

	projected := req.projected
	if a.within(projected) {
		return nil, nil
	}

	removed := make(map[chainhash.Hash]struct{}, len(req.leaving))
	for hash := range req.leaving {
		removed[hash] = struct{}{}
	}

	var victims []chainhash.Hash
	for !a.within(projected) {
		leaf := lowestLeaf(store, idx, removed)
		if leaf == nil {
			return nil, ruleError(ErrPoolFull, fmt.Sprintf("pool "+
				"would hold %v after evicting every entry, caps "+
				"are %d bytes and %d cycles", projected,
				a.maxSize, a.maxCycles))
		}
		if req.candidate != nil && leaf.Hash != req.candidate.Hash &&
			worstLess(req.candidate, leaf) {

			return nil, ruleError(ErrPoolFull, fmt.Sprintf("transaction "+
				"%v (%v) ranks below %v (%v), the next entry "+
				"that would have to be evicted", req.candidate.Hash,
				req.candidate.FeeRate, leaf.Hash, leaf.FeeRate))
		}
		if _, ok := req.protected[leaf.Hash]; ok {
			return nil, ruleError(ErrPoolFull, fmt.Sprintf("admitting "+
				"the transaction would evict %v, which it "+
				"depends on", leaf.Hash))
		}

		e, _ := store.get(leaf.Hash)
		victims = append(victims, leaf.Hash)
		removed[leaf.Hash] = struct{}{}
		projected.size -= e.size
		projected.cycles -= e.cycles
	}
	return victims, nil
}

// lowestLeaf returns the lowest ranked entry that is not in removed and whose
// children are all in removed, or nil when there is none.
func lowestLeaf(store *txStore, idx *feeIndex,
	removed map[chainhash.Hash]struct{}) *TxDesc {

	var leaf *TxDesc
	idx.ascendWorst(func(d *TxDesc) bool {
		if _, ok := removed[d.Hash]; ok {
			return true
		}
		e, ok := store.get(d.Hash)
		if !ok {
			return true
		}
		exposed := true
		e.children.Each(func(child chainhash.Hash) bool {
			if _, gone := removed[child]; !gone && store.has(child) {
				exposed = false
				return true
			}
			return false
		})
		if !exposed {
			return true
		}
		leaf = d
		return false
	})
	return leaf
}
