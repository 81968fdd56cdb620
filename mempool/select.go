// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"iter"

	"github.com/btcsuite/cyclepool/chainhash"
	"github.com/btcsuite/cyclepool/wire"
)

// Candidates returns the block candidates as of the time of the call, in
// descending fee rate order with older entries first among equal rates.
// Only Eligible entries are produced, and an entry is skipped when one of
// its in-pool parents was not produced before it.  Iteration stops once the
// next candidate would exceed either budget.
//
// The sequence works on a point-in-time snapshot, so it may be consumed
// without blocking the pool and is unaffected by concurrent mutations.  It
// may be iterated more than once.
func (p *TxPool) Candidates(sizeBudget, cycleBudget uint64) iter.Seq[*TxDesc] {
	p.mu.RLock()
	snap := p.index.snapshot()
	p.mu.RUnlock()

	return func(yield func(*TxDesc) bool) {
		var (
			included = make(map[chainhash.Hash]struct{})
			size     uint64
			cycles   uint64
		)
		snap.Ascend(func(d *TxDesc) bool {
			if d.State != StateEligible {
				return true
			}
			for _, parent := range d.Parents {
				if _, ok := included[parent]; !ok {
					return true
				}
			}
			if d.Size > sizeBudget-size || d.Cycles > cycleBudget-cycles {
				return false
			}
			size += d.Size
			cycles += d.Cycles
			included[d.Hash] = struct{}{}
			return yield(d)
		})
	}
}

// SelectForBlock returns the transactions Candidates produces for the given
// budgets.
func (p *TxPool) SelectForBlock(sizeBudget, cycleBudget uint64) []*wire.Tx {
	var txs []*wire.Tx
	for d := range p.Candidates(sizeBudget, cycleBudget) {
		txs = append(txs, d.Tx)
	}
	log.Debugf("Selected %d %s for a block (size budget %d, cycle budget "+
		"%d)", len(txs), pickNoun(len(txs), "transaction", "transactions"),
		sizeBudget, cycleBudget)
	return txs
}
