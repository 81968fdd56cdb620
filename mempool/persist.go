// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/cyclepool/database/engine"
	"github.com/btcsuite/cyclepool/wire"
)

// snapshotPrefix is the key prefix of persisted pool transactions.  Keys are
// the prefix followed by the big endian admission sequence number, so a
// prefix scan returns transactions in admission order.
var snapshotPrefix = []byte("txpool/")

func snapshotKey(seq uint64) []byte {
	key := make([]byte, len(snapshotPrefix)+8)
	copy(key, snapshotPrefix)
	binary.BigEndian.PutUint64(key[len(snapshotPrefix):], seq)
	return key
}

// WriteSnapshot replaces any previously persisted pool contents in db with
// the resident transactions and returns how many were written.
func (p *TxPool) WriteSnapshot(db engine.Engine) (int, error) {
	descs := p.TxDescs()

	snap, err := db.Snapshot()
	if err != nil {
		return 0, fmt.Errorf("unable to open snapshot: %w", err)
	}
	var stale [][]byte
	iter := snap.NewIterator(engine.BytesPrefix(snapshotPrefix))
	for iter.Next() {
		stale = append(stale, append([]byte(nil), iter.Key()...))
	}
	iterErr := iter.Error()
	iter.Release()
	snap.Release()
	if iterErr != nil {
		return 0, fmt.Errorf("unable to scan persisted pool: %w", iterErr)
	}

	tx, err := db.Transaction()
	if err != nil {
		return 0, fmt.Errorf("unable to open transaction: %w", err)
	}
	defer tx.Discard()
	for _, key := range stale {
		if err := tx.Delete(key); err != nil {
			return 0, err
		}
	}
	for _, d := range descs {
		raw, err := d.Tx.MsgTx().Bytes()
		if err != nil {
			return 0, fmt.Errorf("unable to serialize %v: %w", d.Hash, err)
		}
		if err := tx.Put(snapshotKey(d.Seq), raw); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("unable to commit pool snapshot: %w", err)
	}

	log.Infof("Persisted %d pool %s", len(descs), pickNoun(len(descs),
		"transaction", "transactions"))
	return len(descs), nil
}

// RestoreSnapshot resubmits the transactions persisted by WriteSnapshot in
// their original admission order and returns how many were admitted.
// Transactions the pool refuses, for instance because they were committed
// in the meantime, are skipped.
func (p *TxPool) RestoreSnapshot(ctx context.Context, db engine.Engine) (int, error) {
	snap, err := db.Snapshot()
	if err != nil {
		return 0, fmt.Errorf("unable to open snapshot: %w", err)
	}
	defer snap.Release()

	var txs []*wire.Tx
	iter := snap.NewIterator(engine.BytesPrefix(snapshotPrefix))
	for iter.Next() {
		tx, err := wire.NewTxFromBytes(iter.Value())
		if err != nil {
			log.Warnf("Skipping undecodable persisted transaction "+
				"%x: %v", iter.Key(), err)
			continue
		}
		txs = append(txs, tx)
	}
	iterErr := iter.Error()
	iter.Release()
	if iterErr != nil {
		return 0, fmt.Errorf("unable to scan persisted pool: %w", iterErr)
	}

	var restored int
	for _, tx := range txs {
		if _, err := p.Submit(ctx, tx); err != nil {
			if err == ErrPoolClosed || ctx.Err() != nil {
				return restored, err
			}
			log.Debugf("Not restoring transaction %v: %v", tx.Hash(), err)
			continue
		}
		restored++
	}

	log.Infof("Restored %d of %d persisted pool %s", restored, len(txs),
		pickNoun(len(txs), "transaction", "transactions"))
	return restored, nil
}
