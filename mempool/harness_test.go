// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/btcsuite/cyclepool/chainhash"
	"github.com/btcsuite/cyclepool/wire"
)

// fakeChain is a minimal chain state: a tip and a set of unspent outputs.
type fakeChain struct {
	mu    sync.RWMutex
	tip   ChainContext
	utxos map[wire.OutPoint]struct{}

	// spent journals the outputs consumed by each connected block so it
	// can be disconnected again.
	spent [][]wire.OutPoint
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		tip:   ChainContext{Height: 100, Epoch: 1},
		utxos: make(map[wire.OutPoint]struct{}),
	}
}

func (c *fakeChain) Tip() ChainContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip
}

func (c *fakeChain) HaveOutput(op wire.OutPoint) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.utxos[op]
	return ok
}

func (c *fakeChain) addUtxo(op wire.OutPoint) {
	c.mu.Lock()
	c.utxos[op] = struct{}{}
	c.mu.Unlock()
}

func (c *fakeChain) setEpoch(epoch uint64) {
	c.mu.Lock()
	c.tip.Epoch = epoch
	c.mu.Unlock()
}

// connect applies a block and returns its height.
func (c *fakeChain) connect(txs ...*wire.Tx) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var spent []wire.OutPoint
	for _, tx := range txs {
		for _, txIn := range tx.MsgTx().TxIn {
			delete(c.utxos, txIn.PreviousOutPoint)
			spent = append(spent, txIn.PreviousOutPoint)
		}
		for i := range tx.MsgTx().TxOut {
			c.utxos[tx.OutPoint(uint32(i))] = struct{}{}
		}
	}
	c.spent = append(c.spent, spent)
	c.tip.Height++
	c.tip.TipHash = chainhash.HashH(binary.LittleEndian.AppendUint64(nil,
		c.tip.Height))
	return c.tip.Height
}

// disconnect undoes the last block and returns its height.
func (c *fakeChain) disconnect(txs ...*wire.Tx) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	height := c.tip.Height
	created := make(map[chainhash.Hash]struct{}, len(txs))
	for _, tx := range txs {
		created[*tx.Hash()] = struct{}{}
		for i := range tx.MsgTx().TxOut {
			delete(c.utxos, tx.OutPoint(uint32(i)))
		}
	}
	last := c.spent[len(c.spent)-1]
	c.spent = c.spent[:len(c.spent)-1]
	for _, op := range last {
		if _, ok := created[op.Hash]; ok {
			continue
		}
		c.utxos[op] = struct{}{}
	}
	c.tip.Height--
	c.tip.TipHash = chainhash.HashH(binary.LittleEndian.AppendUint64(nil,
		c.tip.Height))
	return height
}

// fakeFees prices transactions from a table filled in by the harness.
type fakeFees struct {
	mu   sync.RWMutex
	fees map[chainhash.Hash]uint64
}

func (f *fakeFees) set(hash chainhash.Hash, fee uint64) {
	f.mu.Lock()
	f.fees[hash] = fee
	f.mu.Unlock()
}

func (f *fakeFees) Fee(tx *wire.Tx) (uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fee, ok := f.fees[*tx.Hash()]
	if !ok {
		return 0, errors.New("unknown transaction")
	}
	return fee, nil
}

// fakeVerifier returns configured cycles or errors per transaction and
// counts its invocations.
type fakeVerifier struct {
	mu     sync.Mutex
	cycles map[chainhash.Hash]uint64
	errs   map[chainhash.Hash]error
	counts map[chainhash.Hash]int
	total  atomic.Int64

	// entered, when set, receives a value as each verification starts
	// and the verification then blocks until its context is done.
	entered chan chainhash.Hash
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{
		cycles: make(map[chainhash.Hash]uint64),
		errs:   make(map[chainhash.Hash]error),
		counts: make(map[chainhash.Hash]int),
	}
}

func (v *fakeVerifier) Verify(ctx context.Context, tx *wire.Tx,
	_ ChainContext, maxCycles uint64) (uint64, error) {

	hash := *tx.Hash()
	v.total.Add(1)
	v.mu.Lock()
	v.counts[hash]++
	cycles, ok := v.cycles[hash]
	err := v.errs[hash]
	entered := v.entered
	v.mu.Unlock()

	if entered != nil {
		entered <- hash
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if err != nil {
		return 0, err
	}
	if !ok {
		cycles = 1000
	}
	if cycles > maxCycles {
		return 0, ErrExceededMaxCycles
	}
	return cycles, nil
}

func (v *fakeVerifier) calls(hash chainhash.Hash) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.counts[hash]
}

// txSpec describes a test transaction.
type txSpec struct {
	inputs  []wire.OutPoint
	outputs int
	fee     uint64
	size    int
	cycles  uint64
	since   wire.Since
	fail    error
}

// poolHarness bundles a pool with its fake collaborators.
type poolHarness struct {
	t        *testing.T
	chain    *fakeChain
	fees     *fakeFees
	verifier *fakeVerifier
	pool     *TxPool
	clock    *fakeClock

	nextFunding atomic.Uint64
	nextBuild   atomic.Uint64

	notesMtx sync.Mutex
	notes    []*Notification
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// newTestConfig returns a configuration with generous limits wired to the
// given fakes.
func newTestConfig(chain *fakeChain, fees *fakeFees, verifier Verifier,
	clock *fakeClock) *Config {

	cfg := DefaultConfig()
	cfg.MaxMemSize = 1_000_000
	cfg.MaxCycles = 1_000_000_000
	cfg.MaxVerifyCacheSize = 1000
	cfg.MaxConflictCacheSize = 100
	cfg.MaxCommittedTxsHashCacheSize = 1000
	cfg.Verifier = verifier
	cfg.FeeCalculator = fees
	cfg.ChainView = chain
	cfg.Now = clock.Now
	return &cfg
}

// newPoolHarness creates a pool with fake collaborators.  mutate may adjust
// the configuration before the pool is created.
func newPoolHarness(t *testing.T, mutate func(*Config)) *poolHarness {
	t.Helper()

	h := &poolHarness{
		t:        t,
		chain:    newFakeChain(),
		fees:     &fakeFees{fees: make(map[chainhash.Hash]uint64)},
		verifier: newFakeVerifier(),
		clock:    &fakeClock{now: time.Unix(1_700_000_000, 0)},
	}
	cfg := newTestConfig(h.chain, h.fees, h.verifier, h.clock)
	if mutate != nil {
		mutate(cfg)
	}

	pool, err := New(cfg)
	require.NoError(t, err, "failed to create test pool")
	h.pool = pool
	pool.Subscribe(func(n *Notification) {
		h.notesMtx.Lock()
		h.notes = append(h.notes, n)
		h.notesMtx.Unlock()
	})
	t.Cleanup(func() {
		_ = pool.Close()
	})
	return h
}

// funding returns a fresh unspent chain output.
func (h *poolHarness) funding() wire.OutPoint {
	n := h.nextFunding.Add(1)
	op := wire.OutPoint{
		Hash: chainhash.HashH(binary.BigEndian.AppendUint64(
			[]byte("funding"), n)),
		Index: 0,
	}
	h.chain.addUtxo(op)
	return op
}

// build creates the transaction described by spec and registers its fee and
// verification outcome.
func (h *poolHarness) build(spec txSpec) *wire.Tx {
	h.t.Helper()

	if len(spec.inputs) == 0 {
		spec.inputs = []wire.OutPoint{h.funding()}
	}
	if spec.outputs == 0 {
		spec.outputs = 1
	}
	if spec.cycles == 0 {
		spec.cycles = 1000
	}

	msgTx := wire.NewMsgTx(wire.TxVersion)
	for i := range spec.inputs {
		msgTx.AddTxIn(wire.NewTxIn(&spec.inputs[i], spec.since))
	}
	// The build number in the first lock keeps rivals spending the same
	// inputs distinct.
	lock := binary.BigEndian.AppendUint64([]byte{0}, h.nextBuild.Add(1))
	msgTx.AddTxOut(wire.NewTxOut(1000, lock, nil))
	for i := 1; i < spec.outputs; i++ {
		msgTx.AddTxOut(wire.NewTxOut(1000, []byte{byte(i)}, nil))
	}
	if spec.size > 0 {
		padTo(h.t, msgTx, spec.size)
	}

	tx := wire.NewTx(msgTx)
	h.fees.set(*tx.Hash(), spec.fee)
	h.verifier.mu.Lock()
	h.verifier.cycles[*tx.Hash()] = spec.cycles
	if spec.fail != nil {
		h.verifier.errs[*tx.Hash()] = spec.fail
	}
	h.verifier.mu.Unlock()
	return tx
}

// padTo grows the data of the first output until the transaction serializes
// to exactly size bytes.
func padTo(t *testing.T, msgTx *wire.MsgTx, size int) {
	t.Helper()

	base := msgTx.SerializeSize()
	require.GreaterOrEqual(t, size, base, "target size below minimum")
	for n := size - base; n >= 0; n-- {
		msgTx.TxOut[0].Data = make([]byte, n)
		if msgTx.SerializeSize() == size {
			return
		}
	}
	t.Fatalf("unable to pad transaction to %d bytes", size)
}

// tx builds a transaction spending a fresh chain output.
func (h *poolHarness) tx(fee uint64, size int) *wire.Tx {
	return h.build(txSpec{fee: fee, size: size})
}

// child builds a transaction spending output index of parent.
func (h *poolHarness) child(parent *wire.Tx, index uint32, fee uint64,
	size int) *wire.Tx {

	return h.build(txSpec{
		inputs: []wire.OutPoint{parent.OutPoint(index)},
		fee:    fee,
		size:   size,
	})
}

func (h *poolHarness) submit(tx *wire.Tx) (*TxDesc, error) {
	return h.pool.Submit(context.Background(), tx)
}

func (h *poolHarness) mustSubmit(tx *wire.Tx, want State) *TxDesc {
	h.t.Helper()

	desc, err := h.submit(tx)
	require.NoError(h.t, err, "submit %v", tx.Hash())
	require.Equal(h.t, want, desc.State, "state of %v", tx.Hash())
	return desc
}

// commit connects a block holding txs and notifies the pool.
func (h *poolHarness) commit(txs ...*wire.Tx) {
	h.t.Helper()

	height := h.chain.connect(txs...)
	require.NoError(h.t, h.pool.OnBlockCommitted(height, txs))
}

// revert disconnects the last block, which must hold txs, and notifies the
// pool.
func (h *poolHarness) revert(txs ...*wire.Tx) *RevertResult {
	h.t.Helper()

	height := h.chain.disconnect(txs...)
	res, err := h.pool.OnBlockReverted(context.Background(), height, txs)
	require.NoError(h.t, err)
	return res
}

func (h *poolHarness) state(tx *wire.Tx) (State, bool) {
	desc, ok := h.pool.Entry(*tx.Hash())
	if !ok {
		return 0, false
	}
	return desc.State, true
}

func (h *poolHarness) requireState(tx *wire.Tx, want State) {
	h.t.Helper()

	got, ok := h.state(tx)
	require.True(h.t, ok, "transaction %v is not resident", tx.Hash())
	require.Equal(h.t, want, got, "state of %v", tx.Hash())
}

func (h *poolHarness) requireAbsent(tx *wire.Tx) {
	h.t.Helper()

	_, ok := h.pool.Entry(*tx.Hash())
	require.False(h.t, ok, "transaction %v is resident", tx.Hash())
}

func (h *poolHarness) requireConsistent() {
	h.t.Helper()
	require.NoError(h.t, h.pool.CheckInvariants())
}

// notifications returns the notifications of the given type received so
// far.
func (h *poolHarness) notifications(typ NotificationType) []*Notification {
	h.notesMtx.Lock()
	defer h.notesMtx.Unlock()

	var result []*Notification
	for _, n := range h.notes {
		if n.Type == typ {
			result = append(result, n)
		}
	}
	return result
}

// removedReasons maps removed hashes to the reported reason.
func (h *poolHarness) removedReasons() map[chainhash.Hash]State {
	reasons := make(map[chainhash.Hash]State)
	for _, n := range h.notifications(NTTxRemoved) {
		r := n.Data.(*RemovedTx)
		reasons[r.Hash] = r.Reason
	}
	return reasons
}

func hashesOf(txs []*wire.Tx) []chainhash.Hash {
	hashes := make([]chainhash.Hash, 0, len(txs))
	for _, tx := range txs {
		hashes = append(hashes, *tx.Hash())
	}
	return hashes
}
