// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/btcsuite/cyclepool/chainhash"
	"github.com/btcsuite/cyclepool/wire"
)

// OnBlockCommitted updates the pool for a block connected at height.  The
// height must directly follow the last processed block.  Resident
// transactions included in the block leave the pool; resident transactions
// spending an input the block spends become conflicted.  Entries whose
// inputs the block provides are re-evaluated and, when they reach Pending,
// verified before the call returns.
func (p *TxPool) OnBlockCommitted(height uint64, txs []*wire.Tx) error {
	p.chainMtx.Lock()
	defer p.chainMtx.Unlock()

	var batch eventBatch
	p.mu.Lock()
	pending, err := p.commitBlockLocked(height, txs, &batch)
	p.mu.Unlock()
	p.flush(&batch)
	if err != nil {
		return err
	}

	p.verifyPending(p.ctx, pending)
	return nil
}

func (p *TxPool) commitBlockLocked(height uint64, txs []*wire.Tx,
	batch *eventBatch) ([]chainhash.Hash, error) {

	if p.closed {
		return nil, ErrPoolClosed
	}
	if height != p.tipHeight+1 {
		return nil, ruleError(ErrOutOfOrderBlock, fmt.Sprintf("block "+
			"at height %d committed, expected height %d", height,
			p.tipHeight+1))
	}

	// Plan.
	inBlock := make(map[chainhash.Hash]struct{}, len(txs))
	for _, tx := range txs {
		inBlock[*tx.Hash()] = struct{}{}
	}
	var (
		committed  []*TxEntry
		conflicted []chainhash.Hash
		seen       = make(map[chainhash.Hash]struct{})
	)
	for _, tx := range txs {
		if e, ok := p.store.get(*tx.Hash()); ok {
			if err := p.store.checkEntry(e); err != nil {
				log.Criticalf("Refusing block %d: %v", height, err)
				return nil, wrapRuleError(ErrInternalInconsistency,
					"pool state is inconsistent", err)
			}
			committed = append(committed, e)
		}
		for _, txIn := range tx.MsgTx().TxIn {
			spender, ok := p.store.spentBy[txIn.PreviousOutPoint]
			if !ok {
				continue
			}
			if _, ok := inBlock[spender]; ok {
				continue
			}
			if _, ok := seen[spender]; ok {
				continue
			}
			seen[spender] = struct{}{}
			conflicted = append(conflicted, spender)
		}
	}

	// Apply.
	for _, e := range committed {
		p.commitEntryLocked(e, height, batch)
	}
	for _, hash := range conflicted {
		p.removeLocked(hash, StateConflicted, fmt.Sprintf("input spent "+
			"by block %d", height), batch)
	}
	var roots []chainhash.Hash
	for _, tx := range txs {
		hash := *tx.Hash()
		p.committed.Add(hash, height)
		p.conflicts.Remove(hash)
		for _, spender := range p.store.spenders(tx) {
			e, _ := p.store.get(spender)
			e.missing.Remove(hash)
			roots = append(roots, spender)
		}
	}
	p.tipHeight = height

	tip := p.cfg.ChainView.Tip()
	if tip.Height != height {
		log.Warnf("Chain view reports height %d after committing block "+
			"%d", tip.Height, height)
	}
	if n := p.verifyCache.InvalidateStale(tip.Epoch); n > 0 {
		log.Debugf("Dropped %d stale cached %s", n,
			pickNoun(n, "verification", "verifications"))
	}

	p.refreshLocked(roots, batch)
	pending := p.refreshAllLocked(batch)
	p.expireOrphansLocked(p.cfg.Now(), batch)
	p.lastUpdated.Store(p.cfg.Now().Unix())

	log.Debugf("Processed block %d: %d committed, %d conflicted, %d "+
		"resident", height, len(committed), len(conflicted),
		p.store.count())

	return pending, nil
}

// commitEntryLocked drops an entry included in a block.  Its children keep
// the spent outputs, which now live in the chain.
func (p *TxPool) commitEntryLocked(e *TxEntry, height uint64,
	batch *eventBatch) {

	for _, childHash := range e.children.ToSlice() {
		child, _ := p.store.get(childHash)
		child.parents.Remove(e.hash)
	}
	children := e.children.ToSlice()
	p.dropLocked(e)
	e.state = StateCommitted
	batch.removed(e.hash, StateCommitted, fmt.Sprintf("committed at "+
		"height %d", height))
	p.refreshLocked(children, batch)
}

// RevertResult reports the outcome of re-admitting the transactions of a
// reverted block.
type RevertResult struct {
	// Readmitted holds the descriptors of the transactions that became
	// resident again, in block order.
	Readmitted []*TxDesc

	// Rejected maps each transaction that could not be re-admitted to
	// the reason.
	Rejected map[chainhash.Hash]error
}

// OnBlockReverted updates the pool for the block at height being
// disconnected.  The height must be the last processed block.  The block's
// transactions are verified concurrently against the new tip and then
// re-admitted in block order within a single exclusive section, under the
// rules that apply to fresh submissions.
func (p *TxPool) OnBlockReverted(ctx context.Context, height uint64,
	txs []*wire.Tx) (*RevertResult, error) {

	p.chainMtx.Lock()
	defer p.chainMtx.Unlock()

	ctx, cancel, err := p.admissionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	p.mu.RLock()
	tipHeight := p.tipHeight
	p.mu.RUnlock()
	if height != tipHeight || height == 0 {
		return nil, ruleError(ErrOutOfOrderBlock, fmt.Sprintf("block "+
			"at height %d reverted, current height is %d", height,
			tipHeight))
	}

	tip := p.cfg.ChainView.Tip()
	if n := p.verifyCache.InvalidateStale(tip.Epoch); n > 0 {
		log.Debugf("Dropped %d stale cached %s", n,
			pickNoun(n, "verification", "verifications"))
	}

	// Verify everything up front, outside the pool lock.
	cands := make([]*candidate, len(txs))
	errs := make([]error, len(txs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.VerifyWorkers)
	for i, tx := range txs {
		g.Go(func() error {
			cand, err := p.newCandidate(tx)
			if err != nil {
				errs[i] = err
				return nil
			}
			cycles, err := p.verifyTx(gctx, tx, tip)
			switch {
			case errors.Is(err, ErrPoolClosed):
				return err
			case gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				errs[i] = err
				return nil
			}
			cand.cycles, cand.verified = cycles, true
			cands[i] = cand
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if p.ctx.Err() != nil {
			return nil, ErrPoolClosed
		}
		return nil, err
	}

	result := &RevertResult{Rejected: make(map[chainhash.Hash]error)}
	var (
		batch   eventBatch
		pending []chainhash.Hash
	)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if height != p.tipHeight {
		p.mu.Unlock()
		return nil, ruleError(ErrOutOfOrderBlock, fmt.Sprintf("block "+
			"at height %d reverted, current height is %d", height,
			p.tipHeight))
	}
	if err := p.checkRevertLocked(txs, cands); err != nil {
		p.mu.Unlock()
		log.Criticalf("Refusing revert of block %d: %v", height, err)
		return nil, wrapRuleError(ErrInternalInconsistency,
			"pool state is inconsistent", err)
	}
	p.tipHeight = height - 1
	for _, tx := range txs {
		p.committed.Remove(*tx.Hash())
	}
	for i, tx := range txs {
		hash := *tx.Hash()
		if errs[i] != nil {
			result.Rejected[hash] = errs[i]
			continue
		}
		desc, promoted, err := p.admitLocked(cands[i], &batch)
		if err != nil {
			result.Rejected[hash] = err
			continue
		}
		result.Readmitted = append(result.Readmitted, desc)
		pending = append(pending, promoted...)
	}

	// Resident spenders of outputs that did not come back now wait for
	// them as orphans, while orphans whose inputs the revert restored to the
	// chain are resolved.
	var roots []chainhash.Hash
	for _, tx := range txs {
		hash := *tx.Hash()
		if p.store.has(hash) {
			continue
		}
		for _, spender := range p.store.spenders(tx) {
			e, _ := p.store.get(spender)
			e.missing.Add(hash)
			roots = append(roots, spender)
		}
	}
	roots = append(roots, p.store.resolveFromChain(p.cfg.ChainView)...)
	p.refreshLocked(roots, &batch)
	pending = append(pending, p.refreshAllLocked(&batch)...)
	p.lastUpdated.Store(p.cfg.Now().Unix())
	p.mu.Unlock()
	p.flush(&batch)

	log.Debugf("Reverted block %d: %d re-admitted, %d rejected", height,
		len(result.Readmitted), len(result.Rejected))

	p.verifyPending(ctx, pending)
	return result, nil
}

// checkRevertLocked verifies the structure of every resident entry that the
// reverted transactions would attach to, displace or relink, so a corrupt
// pool refuses the revert before anything is applied.
func (p *TxPool) checkRevertLocked(txs []*wire.Tx, cands []*candidate) error {
	touched := make(map[chainhash.Hash]struct{})
	for i, tx := range txs {
		for _, spender := range p.store.spenders(tx) {
			touched[spender] = struct{}{}
		}
		if cands[i] == nil {
			continue
		}
		res, err := p.store.resolve(tx, p.cfg.ChainView)
		if err != nil {
			continue
		}
		for _, hash := range res.parents {
			touched[hash] = struct{}{}
		}
		for _, hash := range res.conflicts {
			touched[hash] = struct{}{}
		}
	}
	for hash := range touched {
		e, ok := p.store.get(hash)
		if !ok {
			continue
		}
		if err := p.store.checkEntry(e); err != nil {
			return err
		}
	}
	return nil
}
