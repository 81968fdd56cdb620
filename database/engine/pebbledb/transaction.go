package pebbledb

import (
	"fmt"

	"github.com/btcsuite/cyclepool/database/engine"
	"github.com/cockroachdb/pebble"
)

// batch collects the writes of one engine.Transaction in a pebble batch.
type batch struct {
	db   *DB
	b    *pebble.Batch
	done bool

	puts, deletes int
}

func (t *batch) Put(key, value []byte) error {
	if t.done {
		return engine.ErrTxClosed
	}
	if err := t.b.Set(key, value, nil); err != nil {
		return fmt.Errorf("pebbledb: put: %w", err)
	}
	t.puts++
	return nil
}

func (t *batch) Delete(key []byte) error {
	if t.done {
		return engine.ErrTxClosed
	}
	if err := t.b.Delete(key, nil); err != nil {
		return fmt.Errorf("pebbledb: delete: %w", err)
	}
	t.deletes++
	return nil
}

// close releases the batch.  It reports whether this call closed it.
func (t *batch) close() bool {
	if t.done {
		return false
	}
	t.done = true
	if err := t.b.Close(); err != nil {
		log.Warnf("Unable to release pebble batch: %v", err)
	}
	return true
}

func (t *batch) Discard() {
	t.close()
}

// Commit applies the batch atomically and syncs it to disk.
func (t *batch) Commit() error {
	if t.done {
		return engine.ErrTxClosed
	}
	defer t.close()
	if t.db.closed.Load() {
		return engine.ErrClosed
	}

	size := t.b.Len()
	if err := t.b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebbledb: commit batch of %d puts and %d "+
			"deletes: %w", t.puts, t.deletes, err)
	}
	log.Debugf("Committed batch of %d puts and %d deletes (%d bytes)",
		t.puts, t.deletes, size)
	return nil
}
