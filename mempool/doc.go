// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package mempool provides a resource-bounded pool of unconfirmed transactions
for a cell-model chain.

The pool admits transactions while keeping two budgets: the summed serialized
size of resident transactions and the summed script verification cycles.
When an admission would exceed either budget, the lowest fee rate entries are
evicted, descendants before ancestors, and a transaction that would itself be
the next to go is refused with ErrPoolFull.

# Lifecycle

Every resident transaction is in one of four states:

  - Orphan: some input is known to neither the pool nor the chain.  Orphans
    are stored unverified and count towards the size budget only.
  - Pending: every input resolves, verification has not completed.
  - Gap: verified, but immature or waiting on an in-pool ancestor that is
    not yet eligible.
  - Eligible: may be included in the next block.

Transactions leave the pool as Committed, Removed or Conflicted.  Removal and
conflict demote descendants back to Orphan; commitment resolves their
inputs instead.

# Verification

Script verification is expensive and performed outside the pool lock.  Its
result is cached per transaction together with the chain epoch it was
obtained in, so transactions of a reverted block usually re-enter the pool
without being verified again.

# Chain notifications

OnBlockCommitted and OnBlockReverted must be called in chain order.  Block
templates are assembled from Candidates or SelectForBlock, which work on a
point-in-time snapshot of the fee rate index and never block admissions.

# Errors

Rule violations are reported as RuleError values carrying an ErrorCode.  Use
IsErrorCode or errors.As to inspect them.  Once Close is called every
operation returns ErrPoolClosed.
*/
package mempool
