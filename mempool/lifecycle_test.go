// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/btcsuite/cyclepool/chainhash"
	"github.com/btcsuite/cyclepool/database/engine/leveldb"
	"github.com/btcsuite/cyclepool/wire"
)

var errVerify = errors.New("lock script returned 1")

// TestOrphanPromotion verifies that an orphan is stored unverified and is
// verified and promoted once its parent arrives.
func TestOrphanPromotion(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, nil)
	parent := h.tx(1000, 0)
	child := h.child(parent, 0, 1000, 0)
	grandchild := h.child(child, 0, 1000, 0)

	desc := h.mustSubmit(child, StateOrphan)
	require.Zero(t, desc.Cycles)
	require.Zero(t, h.verifier.calls(*child.Hash()))

	// The grandchild spends a resident output, so it is verified but waits
	// on its orphan parent.
	h.mustSubmit(grandchild, StateGap)

	stats := h.pool.Stats()
	require.Equal(t, 1, stats.OrphanCount)
	require.Equal(t, 1, stats.GapCount)
	require.Equal(t, uint64(1000), stats.TotalCycles)
	h.requireConsistent()

	h.mustSubmit(parent, StateEligible)
	h.requireState(child, StateEligible)
	h.requireState(grandchild, StateEligible)
	require.Equal(t, 1, h.verifier.calls(*child.Hash()))
	require.Equal(t, uint64(3000), h.pool.Stats().TotalCycles)

	entry, ok := h.pool.Entry(*grandchild.Hash())
	require.True(t, ok)
	require.Equal(t, []chainhash.Hash{*child.Hash()}, entry.Parents)

	var childStates []State
	for _, n := range h.notifications(NTTxStateChanged) {
		if d := n.Data.(*TxDesc); d.Hash == *child.Hash() {
			childStates = append(childStates, d.State)
		}
	}
	require.Equal(t, []State{StatePending, StateEligible}, childStates)
	h.requireConsistent()
}

// TestOrphanFailsVerification verifies that a promoted orphan failing
// verification is dropped.
func TestOrphanFailsVerification(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, nil)
	parent := h.tx(1000, 0)
	child := h.build(txSpec{
		inputs: []wire.OutPoint{parent.OutPoint(0)},
		fee:    1000,
		fail:   errVerify,
	})
	h.mustSubmit(child, StateOrphan)
	h.mustSubmit(parent, StateEligible)

	h.requireAbsent(child)
	require.Equal(t, StateRemoved, h.removedReasons()[*child.Hash()])
	require.Equal(t, uint64(parent.SerializeSize()), h.pool.Stats().TotalSize)
	h.requireConsistent()
}

// TestOrphanLimit verifies that the oldest orphan makes room for a new one.
func TestOrphanLimit(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, func(c *Config) { c.MaxOrphanTxs = 2 })
	var orphans []*wire.Tx
	for i := 0; i < 3; i++ {
		missing := h.build(txSpec{fee: 1000})
		orphan := h.child(missing, 0, 1000, 0)
		h.mustSubmit(orphan, StateOrphan)
		orphans = append(orphans, orphan)
	}

	h.requireAbsent(orphans[0])
	h.requireState(orphans[1], StateOrphan)
	h.requireState(orphans[2], StateOrphan)
	require.Equal(t, 2, h.pool.Stats().OrphanCount)

	t.Run("disabled", func(t *testing.T) {
		h := newPoolHarness(t, func(c *Config) { c.MaxOrphanTxs = 0 })
		missing := h.build(txSpec{fee: 1000})
		_, err := h.submit(h.child(missing, 0, 1000, 0))
		require.True(t, IsErrorCode(err, ErrPoolFull), "got %v", err)
	})
}

// TestOrphanExpiry verifies that orphans are dropped once they outlive the
// orphan time to live.
func TestOrphanExpiry(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, func(c *Config) { c.OrphanTTL = 10 * time.Minute })
	missing := h.build(txSpec{fee: 1000})
	orphan := h.child(missing, 0, 1000, 0)
	h.mustSubmit(orphan, StateOrphan)

	h.clock.advance(6 * time.Minute)
	h.mustSubmit(h.tx(1000, 0), StateEligible)
	h.requireState(orphan, StateOrphan)

	h.clock.advance(6 * time.Minute)
	h.mustSubmit(h.tx(1000, 0), StateEligible)
	h.requireAbsent(orphan)
	require.Equal(t, StateRemoved, h.removedReasons()[*orphan.Hash()])
}

// TestGapMaturity verifies that transactions with an absolute block lock
// wait in Gap, together with their descendants, until the lock matures.
func TestGapMaturity(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, nil)
	locked := h.build(txSpec{fee: 1000, since: wire.NewSinceBlock(103)})
	child := h.child(locked, 0, 1000, 0)

	h.mustSubmit(locked, StateGap)
	h.mustSubmit(child, StateGap)
	require.Empty(t, h.pool.SelectForBlock(1_000_000, 1_000_000))

	h.commit()
	h.requireState(locked, StateGap)

	h.commit()
	h.requireState(locked, StateEligible)
	h.requireState(child, StateEligible)
	require.Equal(t, hashesOf([]*wire.Tx{locked, child}),
		hashesOf(h.pool.SelectForBlock(1_000_000, 1_000_000)))
	h.requireConsistent()

	t.Run("epoch lock", func(t *testing.T) {
		h := newPoolHarness(t, nil)
		tx := h.build(txSpec{fee: 1000, since: wire.NewSinceEpoch(2)})
		h.mustSubmit(tx, StateGap)

		h.chain.setEpoch(2)
		h.commit()
		h.requireState(tx, StateEligible)
	})

	t.Run("always mature", func(t *testing.T) {
		h := newPoolHarness(t, func(c *Config) {
			c.MaturityPolicy = AlwaysMature{}
		})
		h.mustSubmit(h.build(txSpec{
			fee:   1000,
			since: wire.NewSinceBlock(1_000),
		}), StateEligible)
	})
}

// TestSelectionOrder verifies the ordering, budget and dependency rules of
// block candidate selection.
func TestSelectionOrder(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, nil)
	// Fee rates of 3000, 5000, 5000 and 1000 shannons per kilobyte.
	mid := h.tx(600, 200)
	highA := h.tx(1000, 200)
	highB := h.tx(1000, 200)
	low := h.tx(200, 200)

	// The child outranks its parent, so it is met before the parent has
	// been included and is skipped.
	rich := h.child(low, 0, 2000, 200)
	for _, tx := range []*wire.Tx{mid, highA, highB, low, rich} {
		h.mustSubmit(tx, StateEligible)
	}

	got := h.pool.SelectForBlock(1_000_000, 1_000_000)
	require.Equal(t, hashesOf([]*wire.Tx{highA, highB, mid, low}),
		hashesOf(got))

	// Stop once the size budget would be exceeded.
	got = h.pool.SelectForBlock(500, 1_000_000)
	require.Equal(t, hashesOf([]*wire.Tx{highA, highB}), hashesOf(got))

	// The cycle budget applies as well.
	got = h.pool.SelectForBlock(1_000_000, 1000)
	require.Equal(t, hashesOf([]*wire.Tx{highA}), hashesOf(got))

	// A sequence is restartable and unaffected by later admissions.
	seq := h.pool.Candidates(1_000_000, 1_000_000)
	h.mustSubmit(h.tx(100_000, 200), StateEligible)
	var first, second []chainhash.Hash
	for d := range seq {
		first = append(first, d.Hash)
	}
	for d := range seq {
		second = append(second, d.Hash)
	}
	require.Equal(t, first, second)
	require.Equal(t, hashesOf([]*wire.Tx{highA, highB, mid, low}), first)
}

// TestFeeIndexOrder verifies that the index yields entries in non-increasing
// fee rate order with ties in admission order.
func TestFeeIndexOrder(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, nil)
	for i := 0; i < 50; i++ {
		h.mustSubmit(h.tx(uint64(200+(i*37)%11*100), 200), StateEligible)
	}

	var prev *TxDesc
	h.pool.index.ascendBest(func(d *TxDesc) bool {
		if prev != nil {
			require.GreaterOrEqual(t, prev.FeeRate, d.FeeRate)
			if prev.FeeRate == d.FeeRate {
				require.Less(t, prev.Seq, d.Seq)
			}
		}
		prev = d
		return true
	})

	var descs []*TxDesc
	for d := range h.pool.Candidates(1_000_000, 1_000_000) {
		descs = append(descs, d)
	}
	require.Len(t, descs, 50)
	require.True(t, slices.IsSortedFunc(descs, func(a, b *TxDesc) int {
		switch {
		case bestLess(a, b):
			return -1
		case bestLess(b, a):
			return 1
		}
		return 0
	}))
}

// TestSelectThenCommit verifies that committing a selected block removes
// exactly the selected transactions and remembers them.
func TestSelectThenCommit(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, nil)
	parent := h.tx(2000, 200)
	child := h.child(parent, 0, 1000, 200)
	other := h.tx(400, 200)
	for _, tx := range []*wire.Tx{parent, child, other} {
		h.mustSubmit(tx, StateEligible)
	}

	block := h.pool.SelectForBlock(1_000_000, 1_000_000)
	require.Len(t, block, 3)
	h.commit(block...)

	stats := h.pool.Stats()
	require.Zero(t, stats.ResidentCount)
	require.Zero(t, stats.TotalSize)
	require.Zero(t, stats.TotalCycles)
	require.Equal(t, uint64(101), stats.TipHeight)

	for _, tx := range block {
		height, ok := h.pool.CommittedHeight(tx.Hash())
		require.True(t, ok)
		require.Equal(t, uint64(101), height)

		_, err := h.submit(tx)
		require.True(t, IsErrorCode(err, ErrDuplicateTransaction))
		require.Equal(t, StateCommitted, h.removedReasons()[*tx.Hash()])
	}
	h.requireConsistent()
}

// TestCommitPartial verifies that committing a parent releases its resident
// child.
func TestCommitPartial(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, nil)
	parent := h.tx(1000, 0)
	child := h.child(parent, 0, 1000, 0)
	h.mustSubmit(parent, StateEligible)
	h.mustSubmit(child, StateEligible)

	h.commit(parent)
	h.requireAbsent(parent)
	h.requireState(child, StateEligible)
	entry, _ := h.pool.Entry(*child.Hash())
	require.Empty(t, entry.Parents)
	h.requireConsistent()
}

// TestCommitConflicts verifies that a block spending the input of a resident
// transaction marks it conflicted and orphans its descendants.
func TestCommitConflicts(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, nil)
	op := h.funding()
	resident := h.build(txSpec{inputs: []wire.OutPoint{op}, fee: 1000})
	dependent := h.child(resident, 0, 1000, 0)
	h.mustSubmit(resident, StateEligible)
	h.mustSubmit(dependent, StateEligible)

	rival := h.build(txSpec{inputs: []wire.OutPoint{op}, fee: 1})
	h.commit(rival)

	h.requireAbsent(resident)
	h.requireState(dependent, StateOrphan)
	rec, ok := h.pool.ConflictReason(resident.Hash())
	require.True(t, ok)
	require.Contains(t, rec.Reason, "block 101")

	_, err := h.submit(resident)
	require.True(t, IsErrorCode(err, ErrConflicted))
	h.requireConsistent()
}

// TestCommitResolvesOrphan verifies that an orphan whose missing parent is
// committed is verified and promoted.
func TestCommitResolvesOrphan(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, nil)
	parent := h.tx(1000, 0)
	orphan := h.child(parent, 0, 1000, 0)
	h.mustSubmit(orphan, StateOrphan)

	h.commit(parent)
	h.requireState(orphan, StateEligible)
	require.Equal(t, 1, h.verifier.calls(*orphan.Hash()))
}

// TestOutOfOrderBlocks verifies that commit and revert notifications must
// follow the processed chain.
func TestOutOfOrderBlocks(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, nil)
	err := h.pool.OnBlockCommitted(105, nil)
	require.True(t, IsErrorCode(err, ErrOutOfOrderBlock), "got %v", err)
	err = h.pool.OnBlockCommitted(100, nil)
	require.True(t, IsErrorCode(err, ErrOutOfOrderBlock), "got %v", err)

	_, err = h.pool.OnBlockReverted(context.Background(), 99, nil)
	require.True(t, IsErrorCode(err, ErrOutOfOrderBlock), "got %v", err)

	require.NoError(t, h.pool.OnBlockCommitted(101, nil))
	require.Equal(t, uint64(101), h.pool.Stats().TipHeight)
}

// TestRevertReusesVerification verifies that transactions of a reverted
// block return to the pool without being verified again while the epoch is
// unchanged, and without being announced twice.
func TestRevertReusesVerification(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, nil)
	parent := h.tx(1000, 0)
	child := h.child(parent, 0, 1000, 0)
	h.mustSubmit(parent, StateEligible)
	h.mustSubmit(child, StateEligible)
	require.Len(t, h.notifications(NTTxAccepted), 2)

	block := h.pool.SelectForBlock(1_000_000, 1_000_000)
	h.commit(block...)
	require.Zero(t, h.pool.Count())

	res := h.revert(block...)
	require.Empty(t, res.Rejected)
	require.Len(t, res.Readmitted, 2)
	h.requireState(parent, StateEligible)
	h.requireState(child, StateEligible)

	require.Equal(t, 1, h.verifier.calls(*parent.Hash()))
	require.Equal(t, 1, h.verifier.calls(*child.Hash()))
	require.Len(t, h.notifications(NTTxAccepted), 2)

	_, ok := h.pool.CommittedHeight(parent.Hash())
	require.False(t, ok)
	require.Equal(t, uint64(100), h.pool.Stats().TipHeight)
	h.requireConsistent()
}

// TestRevertMockVerifier checks the verification reuse with a mocked
// verifier: it must be invoked once per transaction overall.
func TestRevertMockVerifier(t *testing.T) {
	t.Parallel()

	verifier := &MockVerifier{}
	h := newPoolHarness(t, func(c *Config) { c.Verifier = verifier })
	txs := []*wire.Tx{h.tx(1000, 0), h.tx(2000, 0), h.tx(3000, 0)}
	for _, tx := range txs {
		verifier.On("Verify", mock.Anything, tx, mock.Anything,
			mock.Anything).Return(uint64(500), nil).Once()
		h.mustSubmit(tx, StateEligible)
	}

	h.commit(txs...)
	res := h.revert(txs...)
	require.Len(t, res.Readmitted, 3)

	verifier.AssertExpectations(t)
	verifier.AssertNumberOfCalls(t, "Verify", 3)
}

// TestRevertEpochChange verifies that cached verifications from an earlier
// epoch are not reused.
func TestRevertEpochChange(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, nil)
	tx := h.tx(1000, 0)
	h.mustSubmit(tx, StateEligible)
	h.commit(tx)

	h.chain.setEpoch(2)
	res := h.revert(tx)
	require.Len(t, res.Readmitted, 1)
	require.Equal(t, 2, h.verifier.calls(*tx.Hash()))
}

// TestRevertRelinksSpenders verifies that resident transactions spending the
// outputs of a reverted transaction become its children again, and wait as
// orphans when it does not return.
func TestRevertRelinksSpenders(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, nil)
	parent := h.tx(1000, 0)
	h.mustSubmit(parent, StateEligible)
	h.commit(parent)

	spender := h.child(parent, 0, 1000, 0)
	h.mustSubmit(spender, StateEligible)

	h.revert(parent)
	entry, ok := h.pool.Entry(*spender.Hash())
	require.True(t, ok)
	require.Equal(t, []chainhash.Hash{*parent.Hash()}, entry.Parents)
	require.Equal(t, StateEligible, entry.State)
	h.requireConsistent()

	t.Run("parent rejected", func(t *testing.T) {
		h := newPoolHarness(t, nil)
		parent := h.tx(1000, 0)
		h.mustSubmit(parent, StateEligible)
		h.commit(parent)
		spender := h.child(parent, 0, 1000, 0)
		h.mustSubmit(spender, StateEligible)

		// The parent is no longer valid in the new epoch.
		h.chain.setEpoch(5)
		h.verifier.mu.Lock()
		h.verifier.errs[*parent.Hash()] = errVerify
		h.verifier.mu.Unlock()

		res := h.revert(parent)
		require.Empty(t, res.Readmitted)
		require.True(t, IsErrorCode(res.Rejected[*parent.Hash()],
			ErrVerificationFailed))
		h.requireState(spender, StateOrphan)
		h.requireConsistent()
	})
}

// TestRevertConflict verifies that a reverted transaction must win against
// a resident transaction spending the same input.
func TestRevertConflict(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, nil)
	op := h.funding()
	committed := h.build(txSpec{inputs: []wire.OutPoint{op}, fee: 1000})
	h.mustSubmit(committed, StateEligible)
	h.commit(committed)

	// Once the block is gone this spends the same input.
	rival := h.build(txSpec{inputs: []wire.OutPoint{op}, fee: 100_000})
	h.mustSubmit(rival, StateOrphan)

	res := h.revert(committed)
	require.True(t, IsErrorCode(res.Rejected[*committed.Hash()],
		ErrInsufficientFeeForReplacement))
	h.requireAbsent(committed)

	// The rival's input is back in the chain.
	h.requireState(rival, StateEligible)
	require.Equal(t, 1, h.verifier.calls(*rival.Hash()))
	h.requireConsistent()
}

// TestRevertRefusedWhenInconsistent verifies that a revert touching a
// corrupt entry is refused before any of the block is re-admitted.
func TestRevertRefusedWhenInconsistent(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, nil)
	first := h.tx(1000, 200)
	op := h.funding()
	second := h.build(txSpec{inputs: []wire.OutPoint{op}, fee: 1000})
	h.mustSubmit(first, StateEligible)
	h.mustSubmit(second, StateEligible)
	h.commit(first, second)

	rival := h.build(txSpec{inputs: []wire.OutPoint{op}, fee: 100_000})
	h.mustSubmit(rival, StateOrphan)

	h.pool.mu.Lock()
	e, _ := h.pool.store.get(*rival.Hash())
	e.parents.Add(testHash(99))
	h.pool.mu.Unlock()

	height := h.chain.disconnect(first, second)
	res, err := h.pool.OnBlockReverted(context.Background(), height,
		[]*wire.Tx{first, second})
	require.Nil(t, res)
	require.True(t, IsErrorCode(err, ErrInternalInconsistency),
		"got %v", err)

	h.requireAbsent(first)
	h.requireAbsent(second)
	require.Equal(t, uint64(101), h.pool.Stats().TipHeight)
	_, ok := h.pool.CommittedHeight(first.Hash())
	require.True(t, ok)
}

// TestProcessPending verifies that entries left awaiting verification are
// verified on demand.
func TestProcessPending(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, nil)
	parent := h.tx(1000, 0)
	child := h.child(parent, 0, 1000, 0)
	h.mustSubmit(child, StateOrphan)

	// Admit the parent without running the deferred verification.
	cand, err := h.pool.newCandidate(parent)
	require.NoError(t, err)
	cand.cycles, cand.verified = 1000, true
	var batch eventBatch
	h.pool.mu.Lock()
	_, pending, err := h.pool.admitLocked(cand, &batch)
	h.pool.mu.Unlock()
	require.NoError(t, err)
	require.Equal(t, []chainhash.Hash{*child.Hash()}, pending)
	h.requireState(child, StatePending)
	require.Equal(t, 1, h.pool.Stats().PendingCount)

	n, err := h.pool.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	h.requireState(child, StateEligible)

	n, err = h.pool.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	h.requireConsistent()
}

// TestSnapshotRoundTrip persists the pool to leveldb and restores it into a
// fresh pool sharing the same chain.
func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, nil)
	parent := h.tx(1000, 0)
	child := h.child(parent, 0, 1000, 0)
	other := h.tx(5000, 300)
	for _, tx := range []*wire.Tx{parent, child, other} {
		h.mustSubmit(tx, StateEligible)
	}

	db, err := leveldb.NewDB(filepath.Join(t.TempDir(), "pool"), true)
	require.NoError(t, err)
	defer db.Close()

	n, err := h.pool.WriteSnapshot(db)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	require.NoError(t, h.pool.Close())
	cfg := newTestConfig(h.chain, h.fees, h.verifier, h.clock)
	restored, err := New(cfg)
	require.NoError(t, err)
	defer restored.Close()

	n, err = restored.RestoreSnapshot(context.Background(), db)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	var got []chainhash.Hash
	for _, d := range restored.TxDescs() {
		got = append(got, d.Hash)
		require.Equal(t, StateEligible, d.State)
	}
	require.Equal(t, hashesOf([]*wire.Tx{parent, child, other}), got)

	// Writing again replaces the previous contents.
	n, err = restored.WriteSnapshot(db)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, restored.CheckInvariants())
}
