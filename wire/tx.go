// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"github.com/btcsuite/cyclepool/chainhash"
)

// Tx defines a transaction that provides easier and more efficient
// manipulation of raw transactions.  It memoizes the hash and serialized size
// of the transaction on its first access so subsequent accesses don't have to
// repeat the relatively expensive hashing operations.
//
// A Tx must not be modified once it has been wrapped: the cached values are
// computed eagerly so the wrapper is safe for concurrent readers.
type Tx struct {
	msgTx *MsgTx
	hash  chainhash.Hash
	size  int
}

// NewTx returns a new instance of a transaction given an underlying MsgTx.
func NewTx(msgTx *MsgTx) *Tx {
	return &Tx{
		msgTx: msgTx,
		hash:  msgTx.TxHash(),
		size:  msgTx.SerializeSize(),
	}
}

// NewTxFromBytes returns a new instance of a transaction given the
// serialized bytes.
func NewTxFromBytes(serializedTx []byte) (*Tx, error) {
	var msgTx MsgTx
	if err := msgTx.FromBytes(serializedTx); err != nil {
		return nil, err
	}
	return NewTx(&msgTx), nil
}

// MsgTx returns the underlying MsgTx for the transaction.
func (t *Tx) MsgTx() *MsgTx {
	return t.msgTx
}

// Hash returns the hash of the transaction.
func (t *Tx) Hash() *chainhash.Hash {
	return &t.hash
}

// SerializeSize returns the serialized size of the transaction in bytes.
func (t *Tx) SerializeSize() int {
	return t.size
}

// OutPoint returns the outpoint referencing output index of the
// transaction.
func (t *Tx) OutPoint(index uint32) OutPoint {
	return OutPoint{Hash: t.hash, Index: index}
}
