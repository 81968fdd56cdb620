// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/cyclepool/chainhash"
	"github.com/btcsuite/cyclepool/mempool"
	"github.com/btcsuite/cyclepool/wire"
)

// blocksPerEpoch is the number of simulated blocks in an epoch.
const blocksPerEpoch = 8

// simBlock is a connected block along with the outputs it spent so it can be
// disconnected again.
type simBlock struct {
	txs   []*wire.Tx
	spent []wire.OutPoint
}

// simChain is an in-memory chain of blocks over a set of unspent outputs.  It
// implements mempool.ChainView.
type simChain struct {
	mu     sync.RWMutex
	height uint64
	utxos  map[wire.OutPoint]struct{}
	blocks []simBlock
}

var _ mempool.ChainView = (*simChain)(nil)

// newSimChain returns a chain whose genesis block creates the given number of
// funding outputs.
func newSimChain(funding int) (*simChain, []wire.OutPoint) {
	c := &simChain{utxos: make(map[wire.OutPoint]struct{}, funding)}
	outs := make([]wire.OutPoint, 0, funding)
	genesis := chainhash.HashH([]byte("poolsim genesis"))
	for i := 0; i < funding; i++ {
		op := wire.OutPoint{Hash: genesis, Index: uint32(i)}
		c.utxos[op] = struct{}{}
		outs = append(outs, op)
	}
	return c, outs
}

func (c *simChain) tipLocked() mempool.ChainContext {
	var height [8]byte
	binary.LittleEndian.PutUint64(height[:], c.height)
	return mempool.ChainContext{
		Height:  c.height,
		Epoch:   c.height / blocksPerEpoch,
		TipHash: chainhash.HashH(height[:]),
	}
}

// Tip returns the context of the current tip.
func (c *simChain) Tip() mempool.ChainContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tipLocked()
}

// HaveOutput reports whether op is unspent in the chain.
func (c *simChain) HaveOutput(op wire.OutPoint) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.utxos[op]
	return ok
}

// connect applies a block and returns its height.  Transactions must spend
// unspent outputs or outputs of earlier transactions in the same block.
func (c *simChain) connect(txs []*wire.Tx) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	block := simBlock{txs: txs}
	for _, tx := range txs {
		for _, txIn := range tx.MsgTx().TxIn {
			op := txIn.PreviousOutPoint
			if _, ok := c.utxos[op]; !ok {
				c.undoLocked(&block)
				return 0, fmt.Errorf("block spends unknown output %v", op)
			}
			delete(c.utxos, op)
			block.spent = append(block.spent, op)
		}
		for i := range tx.MsgTx().TxOut {
			c.utxos[tx.OutPoint(uint32(i))] = struct{}{}
		}
	}
	c.blocks = append(c.blocks, block)
	c.height++
	return c.height, nil
}

// undoLocked reverses the effects of a partially or fully applied block.
func (c *simChain) undoLocked(block *simBlock) {
	created := make(map[chainhash.Hash]struct{}, len(block.txs))
	for _, tx := range block.txs {
		created[*tx.Hash()] = struct{}{}
		for i := range tx.MsgTx().TxOut {
			delete(c.utxos, tx.OutPoint(uint32(i)))
		}
	}
	for _, op := range block.spent {
		if _, ok := created[op.Hash]; !ok {
			c.utxos[op] = struct{}{}
		}
	}
}

// disconnect removes the tip block and returns its height and transactions.
func (c *simChain) disconnect() (uint64, []*wire.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.blocks) == 0 {
		return 0, nil, errors.New("cannot disconnect the genesis block")
	}
	block := c.blocks[len(c.blocks)-1]
	c.blocks = c.blocks[:len(c.blocks)-1]
	c.undoLocked(&block)
	height := c.height
	c.height--
	return height, block.txs, nil
}

// errScriptRejected is returned by simVerifier for the transactions it
// deems invalid.
var errScriptRejected = errors.New("script returned a non-zero exit code")

// simVerifier derives a deterministic verification outcome from the
// transaction hash.
type simVerifier struct {
	// failOneIn makes one in failOneIn transactions fail verification.
	failOneIn uint16
}

var _ mempool.Verifier = simVerifier{}

// Verify implements mempool.Verifier.
func (v simVerifier) Verify(ctx context.Context, tx *wire.Tx,
	_ mempool.ChainContext, maxCycles uint64) (uint64, error) {

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	hash := tx.Hash()
	if v.failOneIn > 0 && binary.LittleEndian.Uint16(hash[2:4])%v.failOneIn == 0 {
		return 0, errScriptRejected
	}
	cycles := uint64(len(tx.MsgTx().TxIn))*mempool.TwoInTwoOutCycles/2 +
		uint64(hash[0])*10_000
	if cycles > maxCycles {
		return 0, mempool.ErrExceededMaxCycles
	}
	return cycles, nil
}

// simFees prices transactions from the fees their producers declared.
type simFees struct {
	mu   sync.RWMutex
	fees map[chainhash.Hash]uint64
}

var _ mempool.FeeCalculator = (*simFees)(nil)

func newSimFees() *simFees {
	return &simFees{fees: make(map[chainhash.Hash]uint64)}
}

func (f *simFees) set(hash chainhash.Hash, fee uint64) {
	f.mu.Lock()
	f.fees[hash] = fee
	f.mu.Unlock()
}

// Fee implements mempool.FeeCalculator.
func (f *simFees) Fee(tx *wire.Tx) (uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fee, ok := f.fees[*tx.Hash()]
	if !ok {
		return 0, fmt.Errorf("no fee known for %v", tx.Hash())
	}
	return fee, nil
}
