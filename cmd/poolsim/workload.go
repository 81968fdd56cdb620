// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/btcsuite/cyclepool/mempool"
	"github.com/btcsuite/cyclepool/wire"
)

// wallet is the set of outputs the producers may spend.  It is shared by all
// producers.
type wallet struct {
	mu   sync.Mutex
	outs []wire.OutPoint

	// recent holds outputs that were spent by accepted transactions.
	// Producers occasionally spend them again to exercise replacement.
	recent []wire.OutPoint
}

// take removes and returns up to n random spendable outputs.
func (w *wallet) take(rng *rand.Rand, n int) []wire.OutPoint {
	w.mu.Lock()
	defer w.mu.Unlock()

	var taken []wire.OutPoint
	for len(taken) < n && len(w.outs) > 0 {
		i := rng.IntN(len(w.outs))
		taken = append(taken, w.outs[i])
		w.outs[i] = w.outs[len(w.outs)-1]
		w.outs = w.outs[:len(w.outs)-1]
	}
	return taken
}

// takeSpent returns a random recently spent output, if any.
func (w *wallet) takeSpent(rng *rand.Rand) (wire.OutPoint, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.recent) == 0 {
		return wire.OutPoint{}, false
	}
	return w.recent[rng.IntN(len(w.recent))], true
}

// put returns outputs to the wallet.
func (w *wallet) put(outs ...wire.OutPoint) {
	w.mu.Lock()
	w.outs = append(w.outs, outs...)
	w.mu.Unlock()
}

// spent records inputs consumed by an accepted transaction.
func (w *wallet) spent(outs ...wire.OutPoint) {
	const maxRecent = 256

	w.mu.Lock()
	w.recent = append(w.recent, outs...)
	if len(w.recent) > maxRecent {
		w.recent = w.recent[len(w.recent)-maxRecent:]
	}
	w.mu.Unlock()
}

func (w *wallet) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.outs)
}

// workloadStats counts submission outcomes across producers.
type workloadStats struct {
	submitted atomic.Int64
	accepted  atomic.Int64
	rejected  [mempool.ErrInvalidFee + 1]atomic.Int64
	other     atomic.Int64
}

func (s *workloadStats) record(err error) {
	s.submitted.Add(1)
	if err == nil {
		s.accepted.Add(1)
		return
	}
	var rerr mempool.RuleError
	if errors.As(err, &rerr) && int(rerr.ErrorCode) < len(s.rejected) {
		s.rejected[rerr.ErrorCode].Add(1)
		return
	}
	s.other.Add(1)
}

// workload generates transactions and submits them to the pool from
// concurrent producers.
type workload struct {
	pool   *mempool.TxPool
	chain  *simChain
	fees   *simFees
	wallet *wallet
	stats  workloadStats
	seed   uint64
	round  atomic.Uint64
}

// newTx builds a transaction spending inputs into one or two outputs with a
// random fee.  Some transactions carry an absolute maturity lock slightly
// above the current height.
func (w *workload) newTx(rng *rand.Rand, inputs []wire.OutPoint) *wire.Tx {
	tip := w.chain.Tip()
	var since wire.Since
	if rng.IntN(20) == 0 {
		since = wire.NewSinceBlock(tip.Height + 1 + rng.Uint64N(3))
	}

	msgTx := wire.NewMsgTx(wire.TxVersion)
	for i := range inputs {
		msgTx.AddTxIn(wire.NewTxIn(&inputs[i], since))
	}
	numOutputs := 1 + rng.IntN(2)
	for i := 0; i < numOutputs; i++ {
		data := make([]byte, rng.IntN(256))
		for j := range data {
			data[j] = byte(rng.Uint32())
		}
		msgTx.AddTxOut(wire.NewTxOut(1000+rng.Uint64N(1_000_000),
			[]byte{byte(i)}, data))
	}
	tx := wire.NewTx(msgTx)

	// Fee rates spread between below the default minimum and about 20
	// times above it.
	size := uint64(tx.SerializeSize())
	rate := 500 + rng.Uint64N(20_000)
	w.fees.set(*tx.Hash(), mempool.FeeRate(rate).Fee(size))
	return tx
}

// produce submits count transactions.
func (w *workload) produce(ctx context.Context, id, count int) error {
	rng := rand.New(rand.NewPCG(w.seed, w.round.Add(1)<<8|uint64(id)))
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			inputs    []wire.OutPoint
			replacing bool
		)
		if op, ok := w.wallet.takeSpent(rng); ok && rng.IntN(25) == 0 {
			inputs, replacing = []wire.OutPoint{op}, true
		} else {
			inputs = w.wallet.take(rng, 1+rng.IntN(2))
		}
		if len(inputs) == 0 {
			psimLog.Debugf("Producer %d ran out of spendable outputs", id)
			return nil
		}

		tx := w.newTx(rng, inputs)
		_, err := w.pool.Submit(ctx, tx)
		w.stats.record(err)
		switch {
		case errors.Is(err, mempool.ErrPoolClosed):
			return err
		case err != nil:
			psimLog.Tracef("Producer %d: %v", id, err)
			if !replacing {
				w.wallet.put(inputs...)
			}
			continue
		}

		w.wallet.spent(inputs...)
		outs := make([]wire.OutPoint, 0, len(tx.MsgTx().TxOut))
		for j := range tx.MsgTx().TxOut {
			outs = append(outs, tx.OutPoint(uint32(j)))
		}
		w.wallet.put(outs...)
	}
	return nil
}

// run submits total transactions split across producers.
func (w *workload) run(ctx context.Context, producers, total int) error {
	g, gctx := errgroup.WithContext(ctx)
	for id := 0; id < producers; id++ {
		count := total / producers
		if id < total%producers {
			count++
		}
		g.Go(func() error {
			return w.produce(gctx, id, count)
		})
	}
	return g.Wait()
}
