// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"sync"

	"github.com/google/btree"
)

// feeIndexDegree is the branching factor of the index trees.
const feeIndexDegree = 32

// bestLess orders descriptors for block selection: descending fee rate, then
// ascending admission sequence.
func bestLess(a, b *TxDesc) bool {
	if a.FeeRate != b.FeeRate {
		return a.FeeRate > b.FeeRate
	}
	return a.Seq < b.Seq
}

// worstLess orders descriptors for eviction: ascending fee rate, then
// ascending admission sequence so the older of two equal entries goes first.
func worstLess(a, b *TxDesc) bool {
	if a.FeeRate != b.FeeRate {
		return a.FeeRate < b.FeeRate
	}
	return a.Seq < b.Seq
}

// feeIndex keeps every resident entry in two orders.  Items are immutable
// descriptors and are replaced whenever the entry they describe changes, so
// a clone of the best tree is a consistent point-in-time view.
//
// Mutations happen under the pool write lock.  Cloning mutates internal
// copy-on-write bookkeeping and therefore also needs snapMtx when performed
// under the shared pool lock.
type feeIndex struct {
	best  *btree.BTreeG[*TxDesc]
	worst *btree.BTreeG[*TxDesc]

	snapMtx sync.Mutex
}

func newFeeIndex() *feeIndex {
	return &feeIndex{
		best:  btree.NewG(feeIndexDegree, bestLess),
		worst: btree.NewG(feeIndexDegree, worstLess),
	}
}

// upsert inserts the descriptor, replacing any previous descriptor of the same
// entry.  The ordering key of an entry never changes.
func (fi *feeIndex) upsert(d *TxDesc) {
	fi.best.ReplaceOrInsert(d)
	fi.worst.ReplaceOrInsert(d)
}

// remove deletes the descriptor with the same key as d.
func (fi *feeIndex) remove(d *TxDesc) {
	fi.best.Delete(d)
	fi.worst.Delete(d)
}

func (fi *feeIndex) len() int {
	return fi.best.Len()
}

// snapshot returns a copy-on-write clone of the selection order.
func (fi *feeIndex) snapshot() *btree.BTreeG[*TxDesc] {
	fi.snapMtx.Lock()
	defer fi.snapMtx.Unlock()
	return fi.best.Clone()
}

// ascendWorst calls fn on every descriptor from the lowest ranked upward until
// fn returns false.
func (fi *feeIndex) ascendWorst(fn func(*TxDesc) bool) {
	fi.worst.Ascend(btree.ItemIteratorG[*TxDesc](fn))
}

// ascendBest calls fn on every descriptor from the highest ranked downward
// until fn returns false.
func (fi *feeIndex) ascendBest(fn func(*TxDesc) bool) {
	fi.best.Ascend(btree.ItemIteratorG[*TxDesc](fn))
}
