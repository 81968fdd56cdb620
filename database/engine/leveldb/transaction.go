package leveldb

import (
	"fmt"

	"github.com/btcsuite/cyclepool/database/engine"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// batch collects the writes of one engine.Transaction.
type batch struct {
	db   *DB
	b    *leveldb.Batch
	done bool

	puts, deletes int
	bytes         int
}

func (t *batch) Put(key, value []byte) error {
	if t.done {
		return engine.ErrTxClosed
	}
	t.b.Put(key, value)
	t.puts++
	t.bytes += len(key) + len(value)
	return nil
}

func (t *batch) Delete(key []byte) error {
	if t.done {
		return engine.ErrTxClosed
	}
	t.b.Delete(key)
	t.deletes++
	t.bytes += len(key)
	return nil
}

func (t *batch) Discard() {
	if t.done {
		return
	}
	t.done = true
	t.b.Reset()
}

// Commit writes the batch atomically and syncs it to disk.
func (t *batch) Commit() error {
	if t.done {
		return engine.ErrTxClosed
	}
	t.done = true
	if t.db.closed.Load() {
		return engine.ErrClosed
	}

	err := t.db.ldb.Write(t.b, &opt.WriteOptions{Sync: true})
	if err != nil {
		return fmt.Errorf("leveldb: write batch of %d puts and %d "+
			"deletes: %w", t.puts, t.deletes, err)
	}
	log.Debugf("Wrote batch of %d puts and %d deletes (%d bytes)",
		t.puts, t.deletes, t.bytes)
	t.b.Reset()
	return nil
}
