// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/btcsuite/cyclepool/chainhash"
	"github.com/btcsuite/cyclepool/wire"
)

// TxPool is a transaction pool that admits transactions under bounded
// memory and verification cycles, tracks their dependencies and lifecycle
// state, and offers the eligible ones for block assembly in fee rate order.
//
// All methods are safe for concurrent use.  Script verification happens
// without holding the pool lock and its outcome is re-validated against the
// pool state before anything is applied.
type TxPool struct {
	// lastUpdated tracks the last time a transaction was added or removed,
	// as a unix timestamp.
	lastUpdated atomic.Int64

	cfg Config

	// mu guards the store, the fee index, the accountant and tipHeight.
	mu        sync.RWMutex
	store     *txStore
	index     *feeIndex
	acct      accountant
	tipHeight uint64
	closed    bool

	// nextExpireScan is the time after which the orphans are scanned for
	// expired entries.
	nextExpireScan time.Time

	// chainMtx serializes block commit and revert notifications,
	// including the verification they perform outside mu.
	chainMtx sync.Mutex

	verifyCache *VerifyCache
	conflicts   *ConflictCache
	committed   *CommittedCache
	announced   *announcer

	// ctx is cancelled by Close and aborts in-flight verifications.
	ctx    context.Context
	cancel context.CancelFunc

	notificationsLock sync.RWMutex
	notifications     []NotificationCallback
}

// New returns a new transaction pool using the provided configuration.  The
// configuration is copied; optional collaborators that are unset receive
// their defaults.
func New(cfg *Config) (*TxPool, error) {
	if cfg == nil {
		return nil, errors.New("pool config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := cfg.withDefaults()

	verifyCache, err := NewVerifyCache(c.MaxVerifyCacheSize)
	if err != nil {
		return nil, err
	}
	committed, err := NewCommittedCache(c.MaxCommittedTxsHashCacheSize)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &TxPool{
		cfg:   c,
		store: newTxStore(),
		index: newFeeIndex(),
		acct: accountant{
			maxSize:   c.MaxMemSize,
			maxCycles: c.MaxCycles,
		},
		tipHeight:      c.ChainView.Tip().Height,
		nextExpireScan: c.Now().Add(orphanExpireScanInterval),
		verifyCache:    verifyCache,
		conflicts: NewConflictCache(c.MaxConflictCacheSize,
			c.ConflictCacheTTL),
		committed: committed,
		announced: newAnnouncer(c.MaxAnnouncedCacheSize),
		ctx:       ctx,
		cancel:    cancel,
	}
	p.lastUpdated.Store(c.Now().Unix())

	log.Infof("Transaction pool initialized at height %d (max %d bytes, "+
		"%d cycles, min fee rate %v, replacement policy %s)",
		p.tipHeight, c.MaxMemSize, c.MaxCycles, c.MinFeeRate,
		c.ReplacementPolicy.Name())

	return p, nil
}

// candidate is a transaction on its way into the pool.
type candidate struct {
	tx       *wire.Tx
	hash     chainhash.Hash
	size     uint64
	fee      uint64
	feeRate  FeeRate
	cycles   uint64
	verified bool
}

// newCandidate performs the context free checks on a transaction and prices
// it.
func (p *TxPool) newCandidate(tx *wire.Tx) (*candidate, error) {
	hash := *tx.Hash()
	msgTx := tx.MsgTx()
	if len(msgTx.TxIn) == 0 {
		return nil, ruleError(ErrVerificationFailed, fmt.Sprintf(
			"transaction %v has no inputs", hash))
	}
	if len(msgTx.TxOut) == 0 {
		return nil, ruleError(ErrVerificationFailed, fmt.Sprintf(
			"transaction %v has no outputs", hash))
	}
	seen := make(map[wire.OutPoint]struct{}, len(msgTx.TxIn))
	for _, txIn := range msgTx.TxIn {
		if _, ok := seen[txIn.PreviousOutPoint]; ok {
			return nil, ruleError(ErrVerificationFailed, fmt.Sprintf(
				"transaction %v spends %v more than once",
				hash, txIn.PreviousOutPoint))
		}
		seen[txIn.PreviousOutPoint] = struct{}{}
	}

	fee, err := p.cfg.FeeCalculator.Fee(tx)
	if err != nil {
		return nil, wrapRuleError(ErrInvalidFee, fmt.Sprintf(
			"unable to compute fee of transaction %v", hash), err)
	}
	size := uint64(tx.SerializeSize())
	return &candidate{
		tx:      tx,
		hash:    hash,
		size:    size,
		fee:     fee,
		feeRate: NewFeeRate(fee, size),
	}, nil
}

// admissionContext derives a context that is also cancelled when the pool
// is closed.
func (p *TxPool) admissionContext(ctx context.Context) (context.Context,
	context.CancelFunc, error) {

	if p.ctx.Err() != nil {
		return nil, nil, ErrPoolClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(p.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}, nil
}

// Submit attempts to admit a transaction.  On success the returned
// descriptor reports the state the transaction entered.  Orphans are
// admitted without verification; transactions whose inputs all resolve are
// verified before admission.  Descendants promoted as a consequence are
// verified before Submit returns and reported through notifications.
func (p *TxPool) Submit(ctx context.Context, tx *wire.Tx) (*TxDesc, error) {
	ctx, cancel, err := p.admissionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	cand, err := p.newCandidate(tx)
	if err != nil {
		log.Debugf("Rejected transaction %v: %v", tx.Hash(), err)
		return nil, err
	}

	p.mu.RLock()
	res, err := p.precheckLocked(cand)
	p.mu.RUnlock()
	if err != nil {
		log.Debugf("Rejected transaction %v: %v", cand.hash, err)
		return nil, err
	}

	if !res.isOrphan() {
		tip := p.cfg.ChainView.Tip()
		cycles, err := p.verifyTx(ctx, tx, tip)
		if err != nil {
			log.Debugf("Rejected transaction %v: %v", cand.hash, err)
			return nil, err
		}
		cand.cycles, cand.verified = cycles, true
	}

	var batch eventBatch
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	desc, pending, err := p.admitLocked(cand, &batch)
	p.mu.Unlock()
	p.flush(&batch)
	if err != nil {
		log.Debugf("Rejected transaction %v: %v", cand.hash, err)
		return nil, err
	}

	log.Debugf("Accepted transaction %v as %v (fee rate %v, %d cycles, "+
		"pool size %d)", desc.Hash, desc.State, desc.FeeRate,
		desc.Cycles, p.Count())

	if len(pending) > 0 {
		p.verifyPending(ctx, pending)
		if current, ok := p.Entry(desc.Hash); ok {
			desc = current
		}
	}
	return desc, nil
}

// precheckLocked runs the admission checks that need the pool state but no
// verification.  It must be called with the pool lock held for reads.
func (p *TxPool) precheckLocked(cand *candidate) (*resolution, error) {
	if p.store.has(cand.hash) {
		return nil, ruleError(ErrDuplicateTransaction, fmt.Sprintf(
			"already have transaction %v", cand.hash))
	}
	if height, ok := p.committed.Height(cand.hash); ok {
		return nil, ruleError(ErrDuplicateTransaction, fmt.Sprintf(
			"transaction %v was committed at height %d", cand.hash,
			height))
	}
	if rec, ok := p.conflicts.Lookup(cand.hash); ok {
		return nil, ruleError(ErrConflicted, fmt.Sprintf("transaction "+
			"%v is conflicted: %s", cand.hash, rec.Reason))
	}

	res, err := p.store.resolve(cand.tx, p.cfg.ChainView)
	if err != nil {
		return nil, wrapRuleError(ErrVerificationFailed, fmt.Sprintf(
			"transaction %v has an invalid input", cand.hash), err)
	}

	var replaceErr error
	if len(res.conflicts) > 0 {
		infos := make([]ConflictInfo, 0, len(res.conflicts))
		for _, hash := range res.conflicts {
			e, _ := p.store.get(hash)
			infos = append(infos, e.conflictInfo())
		}
		replaceErr = p.cfg.ReplacementPolicy.AllowReplacement(
			cand.feeRate, infos)
	}
	if cand.feeRate < p.cfg.MinFeeRate &&
		(len(res.conflicts) == 0 || replaceErr != nil) {

		return nil, ruleError(ErrFeeTooLow, fmt.Sprintf("transaction %v "+
			"has fee rate %v, minimum is %v (fee %d, size %d)",
			cand.hash, cand.feeRate, p.cfg.MinFeeRate, cand.fee,
			cand.size))
	}
	if replaceErr != nil {
		return nil, wrapRuleError(ErrInsufficientFeeForReplacement,
			fmt.Sprintf("transaction %v cannot replace %d %s",
				cand.hash, len(res.conflicts),
				pickNoun(len(res.conflicts), "transaction",
					"transactions")), replaceErr)
	}
	return res, nil
}

// admitLocked re-validates the candidate against the current state, plans
// the evictions it requires and applies the admission.  Nothing is changed
// when an error is returned.  It returns the descriptor of the admitted
// entry and the hashes of entries left awaiting verification.  It must be
// called with the pool lock held for writes.
func (p *TxPool) admitLocked(cand *candidate, batch *eventBatch) (*TxDesc,
	[]chainhash.Hash, error) {

	now := p.cfg.Now()
	p.expireOrphansLocked(now, batch)

	res, err := p.precheckLocked(cand)
	if err != nil {
		return nil, nil, err
	}

	protected := p.store.ancestors(res.parents...)
	for _, hash := range res.parents {
		protected[hash] = struct{}{}
	}
	leaving := make(map[chainhash.Hash]struct{}, len(res.conflicts))
	for _, hash := range res.conflicts {
		if _, ok := protected[hash]; ok {
			return nil, nil, ruleError(ErrVerificationFailed,
				fmt.Sprintf("transaction %v spends an output of "+
					"%v, which it also conflicts with",
					cand.hash, hash))
		}
		leaving[hash] = struct{}{}
	}

	touched := append(slices.Clone(res.parents), res.conflicts...)
	for _, hash := range touched {
		e, _ := p.store.get(hash)
		if err := p.store.checkEntry(e); err != nil {
			log.Criticalf("Refusing transaction %v: %v", cand.hash, err)
			return nil, nil, wrapRuleError(ErrInternalInconsistency,
				"pool state is inconsistent", err)
		}
	}

	var orphanVictims []chainhash.Hash
	if res.isOrphan() {
		orphanVictims, err = p.orphanOverflowLocked(leaving, protected)
		if err != nil {
			return nil, nil, err
		}
	}

	projected := p.acct.totals
	projected.size += cand.size
	projected.cycles += cand.cycles
	for hash := range leaving {
		e, _ := p.store.get(hash)
		projected.size -= e.size
		projected.cycles -= e.cycles
	}
	for _, hash := range orphanVictims {
		e, _ := p.store.get(hash)
		projected.size -= e.size
		projected.cycles -= e.cycles
		leaving[hash] = struct{}{}
	}
	victims, err := p.acct.planEviction(p.store, p.index, &evictionRequest{
		projected: projected,
		leaving:   leaving,
		protected: protected,
		candidate: &TxDesc{
			Hash:    cand.hash,
			FeeRate: cand.feeRate,
			Seq:     p.store.peekSeq(),
		},
	})
	if err != nil {
		return nil, nil, err
	}

	// Everything is validated, apply.
	for _, hash := range res.conflicts {
		p.removeLocked(hash, StateConflicted, fmt.Sprintf("replaced by %v",
			cand.hash), batch)
	}
	for _, hash := range orphanVictims {
		p.removeLocked(hash, StateRemoved, "orphan limit reached", batch)
	}
	for _, hash := range victims {
		p.removeLocked(hash, StateRemoved, fmt.Sprintf("evicted to "+
			"admit %v", cand.hash), batch)
	}
	if len(victims) > 0 {
		log.Debugf("Evicted %d %s to admit %v", len(victims),
			pickNoun(len(victims), "transaction", "transactions"),
			cand.hash)
		log.Tracef("Eviction victims: %v", newLogClosure(func() string {
			return spew.Sdump(victims)
		}))
	}

	e := newTxEntry(cand.tx, cand.fee, p.store.allocSeq(), now)
	e.cycles, e.verified = cand.cycles, cand.verified
	linked := p.store.insert(e, res)
	p.acct.add(e.size, e.cycles)

	pending := p.refreshLocked(append([]chainhash.Hash{e.hash}, linked...),
		batch)
	desc := e.desc()
	batch.accepted(desc)
	p.lastUpdated.Store(now.Unix())

	return desc, pending, nil
}

// orphanOverflowLocked returns the oldest orphans that must go so one more
// orphan fits under the orphan limit.
func (p *TxPool) orphanOverflowLocked(leaving,
	protected map[chainhash.Hash]struct{}) ([]chainhash.Hash, error) {

	count := p.store.countState(StateOrphan)
	for hash := range leaving {
		if e, ok := p.store.get(hash); ok && e.state == StateOrphan {
			count--
		}
	}
	excess := count + 1 - p.cfg.MaxOrphanTxs
	if excess <= 0 {
		return nil, nil
	}

	var orphans []*TxEntry
	for hash, e := range p.store.entries {
		if e.state != StateOrphan {
			continue
		}
		if _, ok := leaving[hash]; ok {
			continue
		}
		if _, ok := protected[hash]; ok {
			continue
		}
		orphans = append(orphans, e)
	}
	if len(orphans) < excess {
		return nil, ruleError(ErrPoolFull, fmt.Sprintf("orphan limit "+
			"of %d reached", p.cfg.MaxOrphanTxs))
	}
	slices.SortFunc(orphans, func(a, b *TxEntry) int {
		return compareUint64(a.seq, b.seq)
	})
	victims := make([]chainhash.Hash, 0, excess)
	for _, e := range orphans[:excess] {
		victims = append(victims, e.hash)
	}
	return victims, nil
}

// expireOrphansLocked removes orphans that waited longer than the orphan
// time to live.  The scan runs at most once per scan interval.
func (p *TxPool) expireOrphansLocked(now time.Time, batch *eventBatch) {
	if p.cfg.OrphanTTL <= 0 || now.Before(p.nextExpireScan) {
		return
	}
	interval := orphanExpireScanInterval
	if p.cfg.OrphanTTL < interval {
		interval = p.cfg.OrphanTTL
	}
	p.nextExpireScan = now.Add(interval)
	p.conflicts.DeleteExpired()

	var expired []chainhash.Hash
	for hash, e := range p.store.entries {
		if e.state == StateOrphan && now.Sub(e.added) > p.cfg.OrphanTTL {
			expired = append(expired, hash)
		}
	}
	for _, hash := range expired {
		p.removeLocked(hash, StateRemoved, "orphan expired", batch)
	}
	if len(expired) > 0 {
		log.Debugf("Expired %d %s (remaining: %d)", len(expired),
			pickNoun(len(expired), "orphan", "orphans"),
			p.store.countState(StateOrphan))
	}
}

// removeLocked drops a resident entry for a reason other than commitment.
// Its children lose a parent and wait for it again as orphans.
func (p *TxPool) removeLocked(hash chainhash.Hash, reason State, detail string,
	batch *eventBatch) {

	e, ok := p.store.get(hash)
	if !ok {
		return
	}
	children := e.children.ToSlice()
	for _, childHash := range children {
		child, _ := p.store.get(childHash)
		child.parents.Remove(hash)
		child.missing.Add(hash)
	}
	p.dropLocked(e)
	e.state = reason

	if reason == StateConflicted {
		p.conflicts.Add(hash, ConflictRecord{
			Reason: detail,
			Time:   p.cfg.Now(),
		})
	}
	batch.removed(hash, reason, detail)
	log.Tracef("Removed transaction %v (%v): %s", hash, reason, detail)

	p.refreshLocked(children, batch)
}

// dropLocked removes the entry from the store, the index and the totals.
func (p *TxPool) dropLocked(e *TxEntry) {
	p.store.remove(e)
	p.index.remove(&TxDesc{FeeRate: e.feeRate, Seq: e.seq})
	p.acct.sub(e.size, e.cycles)
	p.lastUpdated.Store(p.cfg.Now().Unix())
}

// evaluateLocked returns the resident state the entry belongs in.
func (p *TxPool) evaluateLocked(e *TxEntry, tip ChainContext) State {
	if e.missing.Cardinality() > 0 {
		return StateOrphan
	}
	if !e.verified {
		return StatePending
	}
	eligibleParents := true
	e.parents.Each(func(hash chainhash.Hash) bool {
		parent, ok := p.store.get(hash)
		if !ok || parent.state != StateEligible {
			eligibleParents = false
			return true
		}
		return false
	})
	if !eligibleParents || !p.cfg.MaturityPolicy.IsMature(e.tx, tip) {
		return StateGap
	}
	return StateEligible
}

// refreshLocked re-evaluates the given entries, and the descendants of every
// entry whose state changes, and re-indexes them.  It returns the hashes of
// visited entries awaiting verification.
func (p *TxPool) refreshLocked(roots []chainhash.Hash,
	batch *eventBatch) []chainhash.Hash {

	tip := p.cfg.ChainView.Tip()
	queue := slices.Clone(roots)
	forced := make(map[chainhash.Hash]struct{}, len(roots))
	for _, hash := range roots {
		forced[hash] = struct{}{}
	}

	var pending []chainhash.Hash
	pendingSeen := make(map[chainhash.Hash]struct{})
	for len(queue) > 0 {
		hash := queue[0]
		queue = queue[1:]
		e, ok := p.store.get(hash)
		if !ok {
			continue
		}

		next := p.evaluateLocked(e, tip)
		if next == StatePending {
			if _, ok := pendingSeen[hash]; !ok {
				pendingSeen[hash] = struct{}{}
				pending = append(pending, hash)
			}
		}
		_, force := forced[hash]
		if next == e.state && !force {
			continue
		}
		delete(forced, hash)

		prev, wasIndexed := e.state, e.indexed
		p.store.setState(e, next)
		desc := e.desc()
		p.index.upsert(desc)
		e.indexed = true
		if prev == next {
			continue
		}
		if wasIndexed {
			batch.stateChanged(desc)
		}
		queue = append(queue, e.children.ToSlice()...)
	}
	return pending
}

// refreshAllLocked re-evaluates every resident entry.
func (p *TxPool) refreshAllLocked(batch *eventBatch) []chainhash.Hash {
	roots := make([]chainhash.Hash, 0, p.store.count())
	for hash := range p.store.entries {
		roots = append(roots, hash)
	}
	return p.refreshLocked(roots, batch)
}

// verifyTx verifies a transaction in the given chain context, consulting
// the Verify Cache first.  Successful results and verifier rejections are
// cached; cycle limit failures are not.
func (p *TxPool) verifyTx(ctx context.Context, tx *wire.Tx,
	tip ChainContext) (uint64, error) {

	hash := *tx.Hash()
	if res, ok := p.verifyCache.Lookup(hash, tip.Epoch); ok {
		if res.Err != nil {
			return 0, wrapRuleError(ErrVerificationFailed, fmt.Sprintf(
				"transaction %v failed verification", hash), res.Err)
		}
		log.Tracef("Reusing verification of %v (%d cycles)", hash,
			res.Cycles)
		return res.Cycles, nil
	}

	cycles, err := p.cfg.Verifier.Verify(ctx, tx, tip, p.cfg.MaxTxVerifyCycles)
	if p.ctx.Err() != nil {
		return 0, ErrPoolClosed
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, ctxErr
	}
	switch {
	case errors.Is(err, ErrExceededMaxCycles):
		return 0, wrapRuleError(ErrCyclesLimitExceeded, fmt.Sprintf(
			"transaction %v exceeds the limit of %d cycles", hash,
			p.cfg.MaxTxVerifyCycles), err)

	case err != nil:
		p.verifyCache.Add(hash, VerifyResult{Err: err, Epoch: tip.Epoch})
		return 0, wrapRuleError(ErrVerificationFailed, fmt.Sprintf(
			"transaction %v failed verification", hash), err)

	case cycles > p.cfg.MaxTxVerifyCycles:
		return 0, ruleError(ErrCyclesLimitExceeded, fmt.Sprintf(
			"transaction %v consumed %d cycles, limit is %d", hash,
			cycles, p.cfg.MaxTxVerifyCycles))
	}

	p.verifyCache.Add(hash, VerifyResult{Cycles: cycles, Epoch: tip.Epoch})
	return cycles, nil
}

// verifyPending verifies the given Pending entries one at a time without the
// pool lock, admitting each result under the lock.  Entries promoted as a
// consequence are verified in turn.
func (p *TxPool) verifyPending(ctx context.Context, hashes []chainhash.Hash) int {
	var verified int
	for len(hashes) > 0 {
		var next []chainhash.Hash
		for _, hash := range hashes {
			p.mu.RLock()
			e, ok := p.store.get(hash)
			if !ok || e.state != StatePending {
				p.mu.RUnlock()
				continue
			}
			tx := e.tx
			p.mu.RUnlock()

			cycles, verr := p.verifyTx(ctx, tx, p.cfg.ChainView.Tip())
			if errors.Is(verr, ErrPoolClosed) || ctx.Err() != nil {
				return verified
			}

			var batch eventBatch
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				return verified
			}
			promoted := p.finishVerifyLocked(hash, cycles, verr, &batch)
			p.mu.Unlock()
			p.flush(&batch)

			verified++
			next = append(next, promoted...)
		}
		hashes = next
	}
	return verified
}

// finishVerifyLocked records the verification outcome of a Pending entry.
// A failed entry is removed, as is one whose cycles cannot be accommodated.
func (p *TxPool) finishVerifyLocked(hash chainhash.Hash, cycles uint64,
	verr error, batch *eventBatch) []chainhash.Hash {

	e, ok := p.store.get(hash)
	if !ok || e.state != StatePending || e.verified {
		return nil
	}
	if verr != nil {
		log.Debugf("Deferred verification of %v failed: %v", hash, verr)
		p.removeLocked(hash, StateRemoved, verr.Error(), batch)
		return nil
	}

	protected := p.store.ancestors(hash)
	protected[hash] = struct{}{}
	projected := p.acct.totals
	projected.cycles += cycles
	victims, err := p.acct.planEviction(p.store, p.index, &evictionRequest{
		projected: projected,
		protected: protected,
		candidate: e.desc(),
	})
	if err != nil {
		log.Debugf("Dropping verified transaction %v: %v", hash, err)
		p.removeLocked(hash, StateRemoved, err.Error(), batch)
		return nil
	}
	for _, victim := range victims {
		p.removeLocked(victim, StateRemoved, fmt.Sprintf("evicted to "+
			"admit %v", hash), batch)
	}

	e.cycles, e.verified = cycles, true
	p.acct.add(0, cycles)
	return p.refreshLocked([]chainhash.Hash{hash}, batch)
}

// ProcessPending verifies every entry awaiting verification and returns how
// many verifications completed.
func (p *TxPool) ProcessPending(ctx context.Context) (int, error) {
	ctx, cancel, err := p.admissionContext(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	p.mu.RLock()
	var pending []*TxEntry
	for _, e := range p.store.entries {
		if e.state == StatePending {
			pending = append(pending, e)
		}
	}
	p.mu.RUnlock()

	slices.SortFunc(pending, func(a, b *TxEntry) int {
		return compareUint64(a.seq, b.seq)
	})
	hashes := make([]chainhash.Hash, 0, len(pending))
	for _, e := range pending {
		hashes = append(hashes, e.hash)
	}
	n := p.verifyPending(ctx, hashes)
	if p.ctx.Err() != nil {
		return n, ErrPoolClosed
	}
	return n, ctx.Err()
}

// Evict removes the lowest ranked entries until the pool is within its caps
// and returns the removed hashes.  Every mutation keeps the pool within its
// caps, so this is normally a no-op kept for operators.
func (p *TxPool) Evict() ([]chainhash.Hash, error) {
	var batch eventBatch
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	victims, err := p.acct.planEviction(p.store, p.index, &evictionRequest{
		projected: p.acct.totals,
	})
	if err == nil {
		for _, hash := range victims {
			p.removeLocked(hash, StateRemoved, "evicted", &batch)
		}
	}
	p.mu.Unlock()
	p.flush(&batch)
	return victims, err
}

// SetLimits changes the size and cycle caps, evicting the lowest ranked
// entries needed to honour the new caps.  The caps are left unchanged when
// they cannot be met.
func (p *TxPool) SetLimits(maxMemSize, maxCycles uint64) ([]chainhash.Hash, error) {
	if maxMemSize == 0 || maxCycles == 0 {
		return nil, errors.New("limits must be positive")
	}

	var batch eventBatch
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	prev := p.acct
	p.acct.maxSize, p.acct.maxCycles = maxMemSize, maxCycles
	victims, err := p.acct.planEviction(p.store, p.index, &evictionRequest{
		projected: p.acct.totals,
	})
	if err != nil {
		p.acct = prev
		p.mu.Unlock()
		return nil, err
	}
	for _, hash := range victims {
		p.removeLocked(hash, StateRemoved, "evicted after the limits "+
			"were lowered", &batch)
	}
	p.cfg.MaxMemSize, p.cfg.MaxCycles = maxMemSize, maxCycles
	p.mu.Unlock()
	p.flush(&batch)

	log.Infof("Pool limits set to %d bytes and %d cycles, evicted %d %s",
		maxMemSize, maxCycles, len(victims), pickNoun(len(victims),
			"transaction", "transactions"))
	return victims, nil
}

// Close shuts the pool down.  In-flight admissions fail with ErrPoolClosed
// without effect and every later call returns ErrPoolClosed.
func (p *TxPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.closed = true
	p.cancel()
	log.Infof("Transaction pool closed with %d resident %s",
		p.store.count(), pickNoun(p.store.count(), "transaction",
			"transactions"))
	return nil
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
