// Package pebbledb implements the storage engine on pebble.
package pebbledb

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/btcsuite/cyclepool/database/engine"
	"github.com/cockroachdb/pebble"
)

// ErrSnapshotReleased is returned by reads from a released snapshot.
var ErrSnapshotReleased = errors.New("pebbledb: snapshot released")

const (
	// DefaultCache is the block cache size in MiB used when NewDB is
	// given zero.
	DefaultCache = 8

	// DefaultHandles is the open file limit used when NewDB is given
	// zero.
	DefaultHandles = 16
)

// NewDB opens the database at dbPath with a block cache of cache MiB and at
// most handles open files.  When create is set the database must not exist
// yet.
func NewDB(dbPath string, create bool, cache, handles int) (engine.Engine, error) {
	if cache <= 0 {
		cache = DefaultCache
	}
	if handles <= 0 {
		handles = DefaultHandles
	}

	blockCache := pebble.NewCache(int64(cache) << 20)
	defer blockCache.Unref()

	pdb, err := pebble.Open(dbPath, &pebble.Options{
		Cache:         blockCache,
		ErrorIfExists: create,
		MaxOpenFiles:  handles,
	})
	if err != nil {
		return nil, fmt.Errorf("pebbledb: open %s: %w", dbPath, err)
	}
	log.Debugf("Opened pebble database at %s (cache %d MiB, %d handles)",
		dbPath, cache, handles)

	return &DB{pdb: pdb}, nil
}

// DB is a pebble backed engine.Engine.
type DB struct {
	pdb    *pebble.DB
	closed atomic.Bool
}

// Transaction implements engine.Engine.
func (d *DB) Transaction() (engine.Transaction, error) {
	if d.closed.Load() {
		return nil, engine.ErrClosed
	}
	return &batch{db: d, b: d.pdb.NewBatch()}, nil
}

// Snapshot implements engine.Engine.
func (d *DB) Snapshot() (engine.Snapshot, error) {
	if d.closed.Load() {
		return nil, engine.ErrClosed
	}
	return &Snapshot{snap: d.pdb.NewSnapshot()}, nil
}

// Close implements engine.Engine.
func (d *DB) Close() error {
	if d.closed.Swap(true) {
		return engine.ErrClosed
	}
	log.Tracef("Closing pebble database")
	return d.pdb.Close()
}
