// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/btcsuite/cyclepool/chainhash"
)

const (
	// TxVersion is the current latest supported transaction version.
	TxVersion uint32 = 0

	// MaxTxInPerMessage is the maximum number of inputs a decoded
	// transaction may declare.
	MaxTxInPerMessage = 1 << 16

	// MaxTxOutPerMessage is the maximum number of outputs a decoded
	// transaction may declare.
	MaxTxOutPerMessage = 1 << 16

	// MaxWitnessesPerMessage is the maximum number of witnesses a decoded
	// transaction may declare.
	MaxWitnessesPerMessage = 1 << 16

	// MaxFieldSize is the maximum length of any single variable length
	// field (lock script, cell data or witness).
	MaxFieldSize = 1 << 20

	// outPointSize is the serialized size of an outpoint: 32 byte hash plus
	// 4 byte index.
	outPointSize = chainhash.HashSize + 4

	// txInSize is the serialized size of an input: outpoint plus 8 byte
	// since.
	txInSize = outPointSize + 8
)

// OutPoint defines a data type that is used to track previous transaction
// outputs.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// NewOutPoint returns a new transaction outpoint point with the provided hash
// and index.
func NewOutPoint(hash *chainhash.Hash, index uint32) *OutPoint {
	return &OutPoint{
		Hash:  *hash,
		Index: index,
	}
}

// String returns the OutPoint in the human-readable form "hash:index".
func (o OutPoint) String() string {
	// Allocate enough for hash string, colon, and 10 digits.  Although
	// at the time of writing, the number of outputs in a transaction is
	// capped well below that, this may change in the future.
	buf := make([]byte, 2*chainhash.HashSize+1, 2*chainhash.HashSize+1+10)
	copy(buf, o.Hash.String())
	buf[2*chainhash.HashSize] = ':'
	buf = strconv.AppendUint(buf, uint64(o.Index), 10)
	return string(buf)
}

// TxIn defines a transaction input.
type TxIn struct {
	PreviousOutPoint OutPoint
	Since            Since
}

// NewTxIn returns a new transaction input with the provided previous outpoint
// and maturity lock.
func NewTxIn(prevOut *OutPoint, since Since) *TxIn {
	return &TxIn{
		PreviousOutPoint: *prevOut,
		Since:            since,
	}
}

// TxOut defines a transaction output (a cell).
type TxOut struct {
	Capacity uint64
	Lock     []byte
	Data     []byte
}

// NewTxOut returns a new transaction output with the provided capacity, lock
// script and cell data.
func NewTxOut(capacity uint64, lock, data []byte) *TxOut {
	return &TxOut{
		Capacity: capacity,
		Lock:     lock,
		Data:     data,
	}
}

// SerializeSize returns the number of bytes it would take to serialize the
// the transaction output.
func (t *TxOut) SerializeSize() int {
	// Capacity 8 bytes + serialized varint size for the length of the lock
	// and data plus the bytes themselves.
	return 8 + varBytesSerializeSize(t.Lock) + varBytesSerializeSize(t.Data)
}

// MsgTx is the transaction carried by the pool.  The hash commits to every
// field except the witnesses.
type MsgTx struct {
	Version   uint32
	TxIn      []*TxIn
	TxOut     []*TxOut
	Witnesses [][]byte
}

// NewMsgTx returns a new transaction that conforms to the Message interface.
// The return instance has a default version of TxVersion and there are no
// transaction inputs or outputs.
func NewMsgTx(version uint32) *MsgTx {
	return &MsgTx{
		Version: version,
		TxIn:    make([]*TxIn, 0, 4),
		TxOut:   make([]*TxOut, 0, 4),
	}
}

// AddTxIn adds a transaction input to the message.
func (msg *MsgTx) AddTxIn(ti *TxIn) {
	msg.TxIn = append(msg.TxIn, ti)
}

// AddTxOut adds a transaction output to the message.
func (msg *MsgTx) AddTxOut(to *TxOut) {
	msg.TxOut = append(msg.TxOut, to)
}

// AddWitness appends a witness to the message.
func (msg *MsgTx) AddWitness(witness []byte) {
	msg.Witnesses = append(msg.Witnesses, witness)
}

// TxHash generates the Hash for the transaction.
func (msg *MsgTx) TxHash() chainhash.Hash {
	return chainhash.HashRaw(msg.encodeRaw)
}

// Copy creates a deep copy of a transaction so that the original does not get
// modified when the copy is manipulated.
func (msg *MsgTx) Copy() *MsgTx {
	newTx := MsgTx{
		Version:   msg.Version,
		TxIn:      make([]*TxIn, 0, len(msg.TxIn)),
		TxOut:     make([]*TxOut, 0, len(msg.TxOut)),
		Witnesses: make([][]byte, 0, len(msg.Witnesses)),
	}

	for _, oldTxIn := range msg.TxIn {
		newTxIn := *oldTxIn
		newTx.TxIn = append(newTx.TxIn, &newTxIn)
	}

	for _, oldTxOut := range msg.TxOut {
		newTxOut := TxOut{
			Capacity: oldTxOut.Capacity,
			Lock:     append([]byte(nil), oldTxOut.Lock...),
			Data:     append([]byte(nil), oldTxOut.Data...),
		}
		newTx.TxOut = append(newTx.TxOut, &newTxOut)
	}

	for _, witness := range msg.Witnesses {
		newTx.Witnesses = append(newTx.Witnesses,
			append([]byte(nil), witness...))
	}

	return &newTx
}

// encodeRaw writes every hashed field of the transaction to w.
func (msg *MsgTx) encodeRaw(w io.Writer) error {
	if err := writeUint32(w, msg.Version); err != nil {
		return err
	}

	if err := WriteVarInt(w, uint64(len(msg.TxIn))); err != nil {
		return err
	}
	for _, ti := range msg.TxIn {
		if _, err := w.Write(ti.PreviousOutPoint.Hash[:]); err != nil {
			return err
		}
		if err := writeUint32(w, ti.PreviousOutPoint.Index); err != nil {
			return err
		}
		if err := writeUint64(w, uint64(ti.Since)); err != nil {
			return err
		}
	}

	if err := WriteVarInt(w, uint64(len(msg.TxOut))); err != nil {
		return err
	}
	for _, to := range msg.TxOut {
		if err := writeUint64(w, to.Capacity); err != nil {
			return err
		}
		if err := WriteVarBytes(w, to.Lock); err != nil {
			return err
		}
		if err := WriteVarBytes(w, to.Data); err != nil {
			return err
		}
	}

	return nil
}

// Serialize encodes the transaction to w, witnesses included.
func (msg *MsgTx) Serialize(w io.Writer) error {
	if err := msg.encodeRaw(w); err != nil {
		return err
	}

	if err := WriteVarInt(w, uint64(len(msg.Witnesses))); err != nil {
		return err
	}
	for _, witness := range msg.Witnesses {
		if err := WriteVarBytes(w, witness); err != nil {
			return err
		}
	}

	return nil
}

// Deserialize decodes a transaction from r into the receiver.
func (msg *MsgTx) Deserialize(r io.Reader) error {
	version, err := readUint32(r)
	if err != nil {
		return err
	}
	msg.Version = version

	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxTxInPerMessage {
		return fmt.Errorf("too many input transactions to fit into "+
			"max message size [count %d, max %d]: %w", count,
			MaxTxInPerMessage, ErrTxTooBig)
	}
	msg.TxIn = make([]*TxIn, count)
	for i := range msg.TxIn {
		ti := new(TxIn)
		if _, err := io.ReadFull(r, ti.PreviousOutPoint.Hash[:]); err != nil {
			return err
		}
		if ti.PreviousOutPoint.Index, err = readUint32(r); err != nil {
			return err
		}
		since, err := readUint64(r)
		if err != nil {
			return err
		}
		ti.Since = Since(since)
		msg.TxIn[i] = ti
	}

	count, err = ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxTxOutPerMessage {
		return fmt.Errorf("too many output transactions to fit into "+
			"max message size [count %d, max %d]: %w", count,
			MaxTxOutPerMessage, ErrTxTooBig)
	}
	msg.TxOut = make([]*TxOut, count)
	for i := range msg.TxOut {
		to := new(TxOut)
		if to.Capacity, err = readUint64(r); err != nil {
			return err
		}
		if to.Lock, err = ReadVarBytes(r, MaxFieldSize, "lock"); err != nil {
			return err
		}
		if to.Data, err = ReadVarBytes(r, MaxFieldSize, "data"); err != nil {
			return err
		}
		msg.TxOut[i] = to
	}

	count, err = ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxWitnessesPerMessage {
		return fmt.Errorf("too many witnesses to fit into max message "+
			"size [count %d, max %d]: %w", count,
			MaxWitnessesPerMessage, ErrTxTooBig)
	}
	msg.Witnesses = make([][]byte, count)
	for i := range msg.Witnesses {
		msg.Witnesses[i], err = ReadVarBytes(r, MaxFieldSize, "witness")
		if err != nil {
			return err
		}
	}

	return nil
}

// SerializeSize returns the number of bytes it would take to serialize the
// transaction, witnesses included.
func (msg *MsgTx) SerializeSize() int {
	// Version 4 bytes + serialized varint size for the number of inputs,
	// outputs and witnesses.
	n := 4 + VarIntSerializeSize(uint64(len(msg.TxIn))) +
		VarIntSerializeSize(uint64(len(msg.TxOut))) +
		VarIntSerializeSize(uint64(len(msg.Witnesses)))

	n += len(msg.TxIn) * txInSize
	for _, txOut := range msg.TxOut {
		n += txOut.SerializeSize()
	}
	for _, witness := range msg.Witnesses {
		n += varBytesSerializeSize(witness)
	}

	return n
}

// Bytes returns the serialized form of the transaction.
func (msg *MsgTx) Bytes() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, msg.SerializeSize()))
	if err := msg.Serialize(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromBytes deserializes b into the receiver.  Trailing bytes are an error.
func (msg *MsgTx) FromBytes(b []byte) error {
	r := bytes.NewReader(b)
	if err := msg.Deserialize(r); err != nil {
		return err
	}
	if r.Len() != 0 {
		return fmt.Errorf("%d trailing bytes after transaction", r.Len())
	}
	return nil
}
