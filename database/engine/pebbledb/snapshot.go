package pebbledb

import (
	"errors"
	"fmt"

	"github.com/btcsuite/cyclepool/database/engine"
	"github.com/cockroachdb/pebble"
)

// Snapshot is a pebble snapshot exposed as an engine.Snapshot.
type Snapshot struct {
	snap     *pebble.Snapshot
	released bool
}

// Get returns a copy of the value stored under key.
func (s *Snapshot) Get(key []byte) ([]byte, error) {
	if s.released {
		return nil, ErrSnapshotReleased
	}

	val, closer, err := s.snap.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, engine.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("pebbledb: get: %w", err)
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func (s *Snapshot) Release() {
	if s.released {
		return
	}
	s.released = true
	if err := s.snap.Close(); err != nil {
		log.Warnf("Unable to release pebble snapshot: %v", err)
	}
}

// NewIterator returns an iterator over slice.  Creation errors are reported
// by the iterator's Error method.
func (s *Snapshot) NewIterator(slice *engine.Range) engine.Iterator {
	if s.released {
		return &Iterator{err: ErrSnapshotReleased, released: true}
	}

	iter, err := s.snap.NewIter(&pebble.IterOptions{
		LowerBound: slice.Start,
		UpperBound: slice.Limit,
	})
	if err != nil {
		return &Iterator{err: err, released: true}
	}
	return &Iterator{iter: iter}
}
