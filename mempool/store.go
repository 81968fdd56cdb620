// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"

	"github.com/btcsuite/cyclepool/chainhash"
	"github.com/btcsuite/cyclepool/wire"
)

// txStore holds the resident entries together with the outpoint index used
// for conflict detection and dependency tracking.  It is not safe for
// concurrent use; the pool lock guards it.
type txStore struct {
	entries map[chainhash.Hash]*TxEntry

	// spentBy maps every outpoint consumed by a resident entry to that
	// entry.  Two resident entries never share an outpoint.
	spentBy map[wire.OutPoint]chainhash.Hash

	stateCounts [numResidentStates]int
	nextSeq     uint64
}

func newTxStore() *txStore {
	return &txStore{
		entries: make(map[chainhash.Hash]*TxEntry),
		spentBy: make(map[wire.OutPoint]chainhash.Hash),
	}
}

func (s *txStore) get(hash chainhash.Hash) (*TxEntry, bool) {
	e, ok := s.entries[hash]
	return e, ok
}

func (s *txStore) has(hash chainhash.Hash) bool {
	_, ok := s.entries[hash]
	return ok
}

func (s *txStore) count() int {
	return len(s.entries)
}

// allocSeq returns the next admission sequence number.
func (s *txStore) allocSeq() uint64 {
	seq := s.nextSeq
	s.nextSeq++
	return seq
}

// peekSeq returns the sequence number the next admission will receive.
func (s *txStore) peekSeq() uint64 {
	return s.nextSeq
}

// resolution is the dependency classification of a transaction's inputs
// against the resident entries and the chain.
type resolution struct {
	// parents are the distinct resident entries whose outputs are spent.
	parents []chainhash.Hash

	// missing are the distinct parent hashes found neither in the pool nor
	// in the chain.
	missing []chainhash.Hash

	// conflicts are the distinct resident entries that already spend one
	// of the inputs.
	conflicts []chainhash.Hash
}

// isOrphan reports whether some input could not be resolved.
func (r *resolution) isOrphan() bool {
	return len(r.missing) > 0
}

// resolve classifies every input of tx.  An input that references an output
// index past the end of a resident parent is reported as an error.
func (s *txStore) resolve(tx *wire.Tx, chain ChainView) (*resolution, error) {
	var (
		res  resolution
		hash = *tx.Hash()
	)
	parentSeen := make(map[chainhash.Hash]struct{})
	missingSeen := make(map[chainhash.Hash]struct{})
	conflictSeen := make(map[chainhash.Hash]struct{})
	for _, txIn := range tx.MsgTx().TxIn {
		op := txIn.PreviousOutPoint
		if spender, ok := s.spentBy[op]; ok && spender != hash {
			if _, dup := conflictSeen[spender]; !dup {
				conflictSeen[spender] = struct{}{}
				res.conflicts = append(res.conflicts, spender)
			}
		}

		if parent, ok := s.entries[op.Hash]; ok {
			if int(op.Index) >= len(parent.tx.MsgTx().TxOut) {
				return nil, fmt.Errorf("input %v references a "+
					"non-existent output of %v", op, op.Hash)
			}
			if _, dup := parentSeen[op.Hash]; !dup {
				parentSeen[op.Hash] = struct{}{}
				res.parents = append(res.parents, op.Hash)
			}
			continue
		}
		if chain.HaveOutput(op) {
			continue
		}
		if _, dup := missingSeen[op.Hash]; !dup {
			missingSeen[op.Hash] = struct{}{}
			res.missing = append(res.missing, op.Hash)
		}
	}
	return &res, nil
}

// insert stores the entry, indexes its inputs and links it to its resident
// parents and to any resident entries already spending its outputs, whose
// hashes are returned.  The caller must have removed every conflicting entry
// beforehand.
func (s *txStore) insert(e *TxEntry, res *resolution) []chainhash.Hash {
	s.entries[e.hash] = e
	s.stateCounts[e.state]++
	for _, txIn := range e.tx.MsgTx().TxIn {
		s.spentBy[txIn.PreviousOutPoint] = e.hash
	}
	for _, parentHash := range res.parents {
		e.parents.Add(parentHash)
		s.entries[parentHash].children.Add(e.hash)
	}
	for _, missing := range res.missing {
		e.missing.Add(missing)
	}
	return s.linkSpenders(e)
}

// linkSpenders attaches every resident entry that spends an output of e as
// a child of e, resolving the corresponding missing parent.  It returns the
// hashes of the newly linked children.
func (s *txStore) linkSpenders(e *TxEntry) []chainhash.Hash {
	var linked []chainhash.Hash
	for i := range e.tx.MsgTx().TxOut {
		op := wire.OutPoint{Hash: e.hash, Index: uint32(i)}
		spender, ok := s.spentBy[op]
		if !ok || spender == e.hash {
			continue
		}
		child := s.entries[spender]
		child.missing.Remove(e.hash)
		if child.parents.Add(e.hash) {
			e.children.Add(spender)
			linked = append(linked, spender)
		}
	}
	return linked
}

// resolveFromChain clears the missing parents whose spent outputs are all
// found in the chain and returns the hashes of the entries it changed.
func (s *txStore) resolveFromChain(chain ChainView) []chainhash.Hash {
	var changed []chainhash.Hash
	for hash, e := range s.entries {
		if e.missing.Cardinality() == 0 {
			continue
		}
		var found []chainhash.Hash
		e.missing.Each(func(parent chainhash.Hash) bool {
			for _, txIn := range e.tx.MsgTx().TxIn {
				op := txIn.PreviousOutPoint
				if op.Hash == parent && !chain.HaveOutput(op) {
					return false
				}
			}
			found = append(found, parent)
			return false
		})
		if len(found) == 0 {
			continue
		}
		for _, parent := range found {
			e.missing.Remove(parent)
		}
		changed = append(changed, hash)
	}
	return changed
}

// spenders returns the distinct resident entries that spend an output of the
// given transaction.
func (s *txStore) spenders(tx *wire.Tx) []chainhash.Hash {
	var (
		result []chainhash.Hash
		seen   = make(map[chainhash.Hash]struct{})
		hash   = *tx.Hash()
	)
	for i := range tx.MsgTx().TxOut {
		spender, ok := s.spentBy[wire.OutPoint{Hash: hash, Index: uint32(i)}]
		if !ok {
			continue
		}
		if _, dup := seen[spender]; dup {
			continue
		}
		seen[spender] = struct{}{}
		result = append(result, spender)
	}
	return result
}

// remove deletes the entry and unhooks it from its parents and from the
// outpoint index.  Children keep their link; the caller decides whether they
// lose a parent to the chain or to oblivion.
func (s *txStore) remove(e *TxEntry) {
	for _, txIn := range e.tx.MsgTx().TxIn {
		op := txIn.PreviousOutPoint
		if s.spentBy[op] == e.hash {
			delete(s.spentBy, op)
		}
	}
	e.parents.Each(func(parentHash chainhash.Hash) bool {
		if parent, ok := s.entries[parentHash]; ok {
			parent.children.Remove(e.hash)
		}
		return false
	})
	s.stateCounts[e.state]--
	delete(s.entries, e.hash)
}

// setState moves the entry to a new resident state.
func (s *txStore) setState(e *TxEntry, state State) {
	s.stateCounts[e.state]--
	s.stateCounts[state]++
	e.state = state
}

// countState returns the number of entries in the given resident state.
func (s *txStore) countState(state State) int {
	if !state.IsResident() {
		return 0
	}
	return s.stateCounts[state]
}

// ancestors returns every resident entry reachable through parent links from
// the given entries, excluding the entries themselves unless they are
// reachable from one another.
func (s *txStore) ancestors(roots ...chainhash.Hash) map[chainhash.Hash]struct{} {
	return s.walk(roots, func(e *TxEntry) []chainhash.Hash {
		return e.parents.ToSlice()
	})
}

// descendants returns every resident entry reachable through child links from
// the given entries.
func (s *txStore) descendants(roots ...chainhash.Hash) map[chainhash.Hash]struct{} {
	return s.walk(roots, func(e *TxEntry) []chainhash.Hash {
		return e.children.ToSlice()
	})
}

func (s *txStore) walk(roots []chainhash.Hash,
	next func(*TxEntry) []chainhash.Hash) map[chainhash.Hash]struct{} {

	visited := make(map[chainhash.Hash]struct{})
	queue := make([]chainhash.Hash, 0, len(roots))
	for _, root := range roots {
		if e, ok := s.entries[root]; ok {
			queue = append(queue, next(e)...)
		}
	}
	for len(queue) > 0 {
		hash := queue[0]
		queue = queue[1:]
		if _, ok := visited[hash]; ok {
			continue
		}
		e, ok := s.entries[hash]
		if !ok {
			continue
		}
		visited[hash] = struct{}{}
		queue = append(queue, next(e)...)
	}
	return visited
}

// checkEntry verifies the structural invariants of a single entry.
func (s *txStore) checkEntry(e *TxEntry) error {
	if stored, ok := s.entries[e.hash]; !ok || stored != e {
		return fmt.Errorf("entry %v is not stored under its hash", e.hash)
	}
	if !e.state.IsResident() {
		return fmt.Errorf("entry %v is stored in terminal state %v",
			e.hash, e.state)
	}
	if e.state != StateOrphan && e.missing.Cardinality() != 0 {
		return fmt.Errorf("%v entry %v has %d unresolved parents",
			e.state, e.hash, e.missing.Cardinality())
	}
	if e.state >= StateGap && !e.verified {
		return fmt.Errorf("%v entry %v was never verified", e.state,
			e.hash)
	}

	var err error
	e.parents.Each(func(parentHash chainhash.Hash) bool {
		parent, ok := s.entries[parentHash]
		if !ok {
			err = fmt.Errorf("entry %v links to absent parent %v",
				e.hash, parentHash)
			return true
		}
		if !parent.children.Contains(e.hash) {
			err = fmt.Errorf("parent %v does not list child %v",
				parentHash, e.hash)
			return true
		}
		if e.state == StateEligible && parent.state != StateEligible {
			err = fmt.Errorf("eligible entry %v has %v parent %v",
				e.hash, parent.state, parentHash)
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	e.children.Each(func(childHash chainhash.Hash) bool {
		child, ok := s.entries[childHash]
		if !ok || !child.parents.Contains(e.hash) {
			err = fmt.Errorf("entry %v links to child %v that does "+
				"not list it", e.hash, childHash)
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	for _, txIn := range e.tx.MsgTx().TxIn {
		if s.spentBy[txIn.PreviousOutPoint] != e.hash {
			return fmt.Errorf("outpoint %v of %v is not indexed",
				txIn.PreviousOutPoint, e.hash)
		}
	}
	return nil
}
