// Package engine defines the minimal key/value storage contract the pool
// snapshot store is written against, together with a conformance suite the
// backends run.
package engine

import "errors"

var (
	// ErrNotFound is returned by Snapshot.Get for a missing key.
	ErrNotFound = errors.New("engine: key not found")

	// ErrClosed is returned by every call on an engine after Close.
	ErrClosed = errors.New("engine: database closed")

	// ErrTxClosed is returned by writes to a transaction that was already
	// committed or discarded.
	ErrTxClosed = errors.New("engine: transaction already closed")

	// ErrIterReleased is returned by Iterator.Error after Release.
	ErrIterReleased = errors.New("iterator: iterator released")
)

// Engine is an ordered key/value store.
type Engine interface {
	// Transaction starts an atomic batch of writes.
	Transaction() (Transaction, error)

	// Snapshot returns a consistent read-only view of the committed
	// data.
	Snapshot() (Snapshot, error)

	Close() error
}

// Transaction is an atomic batch of writes.  Nothing is visible to snapshots
// until Commit succeeds, and Put or Delete after Commit or Discard fail with
// ErrTxClosed.
type Transaction interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error

	// Discard abandons the transaction.  It is safe to call more than
	// once and after Commit.
	Discard()
}

// Snapshot is a consistent read-only view of an Engine.
type Snapshot interface {
	Get(key []byte) ([]byte, error)
	NewIterator(*Range) Iterator
	Releaser
}

// Releaser releases the resources held by a snapshot or an iterator.  Release
// is safe to call more than once.
type Releaser interface {
	Release()
}

// Iterator walks the key/value pairs of a Range in ascending key order.  A
// fresh iterator is positioned before the first pair, so the first call to
// Next moves to it.
type Iterator interface {
	// Next moves to the next pair.  It returns false once the iterator
	// is exhausted.
	Next() bool

	// Error returns any accumulated error.  Exhausting the pairs is not
	// an error.
	Error() error

	// Key returns the key of the current pair, or nil if done.  The
	// slice is only valid until the next move.
	Key() []byte

	// Value returns the value of the current pair, or nil if done.  The
	// slice is only valid until the next move.
	Value() []byte

	Releaser
}

// Range is a key range.
type Range struct {
	// Start of the key range, include in the range.
	Start []byte

	// Limit of the key range, not include in the range.
	Limit []byte
}

// BytesPrefix returns key range that satisfy the given prefix.
func BytesPrefix(prefix []byte) *Range {
	var limit []byte
	for i := len(prefix) - 1; i >= 0; i-- {
		c := prefix[i]
		if c < 0xff {
			limit = make([]byte, i+1)
			copy(limit, prefix)
			limit[i] = c + 1
			break
		}
	}
	return &Range{prefix, limit}
}
