// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
	"slices"
	"time"

	"github.com/btcsuite/cyclepool/chainhash"
	"github.com/btcsuite/cyclepool/wire"
)

// Stats is a summary of the pool state.
type Stats struct {
	ResidentCount int
	TotalSize     uint64
	TotalCycles   uint64
	MaxMemSize    uint64
	MaxCycles     uint64

	OrphanCount   int
	PendingCount  int
	GapCount      int
	EligibleCount int

	VerifyCacheSize    int
	ConflictCacheSize  int
	CommittedCacheSize int

	TipHeight   uint64
	MinFeeRate  FeeRate
	LastUpdated time.Time
}

// Stats returns a consistent summary of the pool.
func (p *TxPool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return Stats{
		ResidentCount:      p.store.count(),
		TotalSize:          p.acct.totals.size,
		TotalCycles:        p.acct.totals.cycles,
		MaxMemSize:         p.acct.maxSize,
		MaxCycles:          p.acct.maxCycles,
		OrphanCount:        p.store.countState(StateOrphan),
		PendingCount:       p.store.countState(StatePending),
		GapCount:           p.store.countState(StateGap),
		EligibleCount:      p.store.countState(StateEligible),
		VerifyCacheSize:    p.verifyCache.Len(),
		ConflictCacheSize:  p.conflicts.Len(),
		CommittedCacheSize: p.committed.Len(),
		TipHeight:          p.tipHeight,
		MinFeeRate:         p.cfg.MinFeeRate,
		LastUpdated:        p.LastUpdated(),
	}
}

// LastUpdated returns the last time a transaction was added to or removed
// from the pool.
func (p *TxPool) LastUpdated() time.Time {
	return time.Unix(p.lastUpdated.Load(), 0)
}

// Count returns the number of resident transactions, orphans included.
func (p *TxPool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.store.count()
}

// HaveTransaction returns whether the transaction is resident.
func (p *TxPool) HaveTransaction(hash *chainhash.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.store.has(*hash)
}

// IsKnown returns whether the transaction is resident, recently committed or
// remembered as conflicted.  Submitting a known transaction always fails.
func (p *TxPool) IsKnown(hash *chainhash.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.store.has(*hash) || p.committed.Contains(*hash) ||
		p.conflicts.Contains(*hash)
}

// ConflictReason returns why the transaction is remembered as conflicted.
func (p *TxPool) ConflictReason(hash *chainhash.Hash) (ConflictRecord, bool) {
	return p.conflicts.Lookup(*hash)
}

// CommittedHeight returns the height a recently committed transaction was
// included at.
func (p *TxPool) CommittedHeight(hash *chainhash.Hash) (uint64, bool) {
	return p.committed.Height(*hash)
}

// Entry returns a descriptor of the resident transaction.
func (p *TxPool) Entry(hash chainhash.Hash) (*TxDesc, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, ok := p.store.get(hash)
	if !ok {
		return nil, false
	}
	return e.desc(), true
}

// FetchTransaction returns the requested transaction from the pool.
func (p *TxPool) FetchTransaction(hash *chainhash.Hash) (*wire.Tx, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if e, ok := p.store.get(*hash); ok {
		return e.tx, nil
	}
	return nil, fmt.Errorf("transaction is not in the pool")
}

// TxDescs returns descriptors of every resident transaction in admission
// order.
func (p *TxPool) TxDescs() []*TxDesc {
	p.mu.RLock()
	descs := make([]*TxDesc, 0, p.store.count())
	for _, e := range p.store.entries {
		descs = append(descs, e.desc())
	}
	p.mu.RUnlock()

	slices.SortFunc(descs, func(a, b *TxDesc) int {
		return compareUint64(a.Seq, b.Seq)
	})
	return descs
}

// CheckInvariants verifies the internal consistency of the pool and returns
// an ErrInternalInconsistency rule error describing the first violation.
func (p *TxPool) CheckInvariants() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	inconsistent := func(format string, args ...interface{}) error {
		return wrapRuleError(ErrInternalInconsistency,
			"pool state is inconsistent", fmt.Errorf(format, args...))
	}

	var (
		totals resourceTotals
		counts [numResidentStates]int
	)
	for _, e := range p.store.entries {
		if err := p.store.checkEntry(e); err != nil {
			return inconsistent("%v", err)
		}
		totals.size += e.size
		totals.cycles += e.cycles
		counts[e.state]++
	}
	if totals != p.acct.totals {
		return inconsistent("tracked totals %v differ from entries %v",
			p.acct.totals, totals)
	}
	if !p.acct.within(totals) {
		return inconsistent("totals %v exceed caps of %d bytes and %d "+
			"cycles", totals, p.acct.maxSize, p.acct.maxCycles)
	}
	if counts != p.store.stateCounts {
		return inconsistent("state counts %v differ from entries %v",
			p.store.stateCounts, counts)
	}
	if p.index.len() != p.store.count() {
		return inconsistent("fee index holds %d entries, store %d",
			p.index.len(), p.store.count())
	}

	var indexErr error
	p.index.ascendBest(func(d *TxDesc) bool {
		e, ok := p.store.get(d.Hash)
		if !ok || e.seq != d.Seq || e.state != d.State {
			indexErr = inconsistent("fee index entry %v is stale",
				d.Hash)
			return false
		}
		return true
	})
	if indexErr != nil {
		return indexErr
	}

	if p.verifyCache.Len() > p.cfg.MaxVerifyCacheSize {
		return inconsistent("verify cache holds %d results, capacity "+
			"%d", p.verifyCache.Len(), p.cfg.MaxVerifyCacheSize)
	}
	if p.conflicts.Len() > p.cfg.MaxConflictCacheSize {
		return inconsistent("conflict cache holds %d records, capacity "+
			"%d", p.conflicts.Len(), p.cfg.MaxConflictCacheSize)
	}
	if p.committed.Len() > p.cfg.MaxCommittedTxsHashCacheSize {
		return inconsistent("committed cache holds %d hashes, capacity "+
			"%d", p.committed.Len(), p.cfg.MaxCommittedTxsHashCacheSize)
	}
	return nil
}
