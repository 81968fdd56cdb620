package leveldb

import (
	"errors"

	"github.com/btcsuite/cyclepool/database/engine"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Snapshot is a goleveldb snapshot exposed as an engine.Snapshot.
type Snapshot struct {
	snap *leveldb.Snapshot
}

// Get returns a copy of the value stored under key.
func (s *Snapshot) Get(key []byte) ([]byte, error) {
	val, err := s.snap.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, engine.ErrNotFound
	}
	return val, err
}

func (s *Snapshot) Release() {
	s.snap.Release()
}

func (s *Snapshot) NewIterator(slice *engine.Range) engine.Iterator {
	return s.snap.NewIterator(&util.Range{
		Start: slice.Start,
		Limit: slice.Limit,
	}, nil)
}
