// Package leveldb implements the storage engine on goleveldb.
package leveldb

import (
	"fmt"
	"sync/atomic"

	"github.com/btcsuite/cyclepool/database/engine"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// NewDB opens the database at dbPath.  When create is set the database must
// not exist yet.
func NewDB(dbPath string, create bool) (engine.Engine, error) {
	// Restore only ever scans the snapshot prefix.
	ldb, err := leveldb.OpenFile(dbPath, &opt.Options{
		ErrorIfExist: create,
		Strict:       opt.DefaultStrict,
		Compression:  opt.NoCompression,
	})
	if err != nil {
		return nil, fmt.Errorf("leveldb: open %s: %w", dbPath, err)
	}
	log.Debugf("Opened leveldb database at %s", dbPath)
	return &DB{ldb: ldb}, nil
}

// DB is a goleveldb backed engine.Engine.  Transactions are plain write
// batches applied with a synced write on Commit.
type DB struct {
	ldb    *leveldb.DB
	closed atomic.Bool
}

// Transaction implements engine.Engine.
func (d *DB) Transaction() (engine.Transaction, error) {
	if d.closed.Load() {
		return nil, engine.ErrClosed
	}
	return &batch{db: d, b: new(leveldb.Batch)}, nil
}

// Snapshot implements engine.Engine.
func (d *DB) Snapshot() (engine.Snapshot, error) {
	if d.closed.Load() {
		return nil, engine.ErrClosed
	}
	snap, err := d.ldb.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("leveldb: snapshot: %w", err)
	}
	return &Snapshot{snap: snap}, nil
}

// Close implements engine.Engine.
func (d *DB) Close() error {
	if d.closed.Swap(true) {
		return engine.ErrClosed
	}
	log.Tracef("Closing leveldb database")
	return d.ldb.Close()
}
