package pebbledb

import (
	"github.com/btcsuite/cyclepool/database/engine"
	"github.com/cockroachdb/pebble"
)

// Iterator is a pebble iterator exposed as an engine.Iterator.  It starts
// unpositioned and the first Next moves to the first key of its range.
type Iterator struct {
	iter     *pebble.Iterator
	started  bool
	released bool
	err      error
}

func (i *Iterator) Next() bool {
	if i.released {
		return false
	}
	if !i.started {
		i.started = true
		return i.iter.First()
	}
	return i.iter.Next()
}

func (i *Iterator) Key() []byte {
	if i.released || !i.started || !i.iter.Valid() {
		return nil
	}
	return i.iter.Key()
}

func (i *Iterator) Value() []byte {
	if i.released || !i.started || !i.iter.Valid() {
		return nil
	}
	return i.iter.Value()
}

func (i *Iterator) Release() {
	if i.released {
		return
	}
	i.released = true
	if err := i.iter.Close(); err != nil && i.err == nil {
		i.err = err
	}
}

func (i *Iterator) Error() error {
	if i.err != nil {
		return i.err
	}
	if i.released {
		return engine.ErrIterReleased
	}
	return i.iter.Error()
}
