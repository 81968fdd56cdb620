// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/btcsuite/cyclepool/chainhash"
	"github.com/btcsuite/cyclepool/wire"
)

// TestFeeRate checks fee rate computation and its inverse.
func TestFeeRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		fee  uint64
		size uint64
		want FeeRate
	}{
		{fee: 1000, size: 1000, want: 1000},
		{fee: 1, size: 3, want: 333},
		{fee: 0, size: 250, want: 0},
		{fee: 5, size: 0, want: math.MaxUint64},
		{fee: math.MaxUint64, size: 1, want: math.MaxUint64},
		{fee: math.MaxUint64, size: 2000, want: math.MaxUint64 / 2},
	}
	for _, test := range tests {
		require.Equal(t, test.want, NewFeeRate(test.fee, test.size),
			"fee %d size %d", test.fee, test.size)
	}

	require.Equal(t, uint64(334), FeeRate(1333).Fee(250))
	require.Equal(t, uint64(250), FeeRate(1000).Fee(250))
	require.Equal(t, uint64(math.MaxUint64), FeeRate(math.MaxUint64).Fee(2000))
	require.Equal(t, "1000 shannons/KB", FeeRate(1000).String())
}

// TestErrorCodes checks rule error formatting and classification.
func TestErrorCodes(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ErrPoolFull", ErrPoolFull.String())
	require.Equal(t, "ErrInvalidFee", ErrInvalidFee.String())
	require.Equal(t, "Unknown ErrorCode (99)", ErrorCode(99).String())

	cause := errors.New("boom")
	err := fmt.Errorf("submit: %w", wrapRuleError(ErrVerificationFailed,
		"transaction failed verification", cause))
	require.True(t, IsErrorCode(err, ErrVerificationFailed))
	require.False(t, IsErrorCode(err, ErrPoolFull))
	require.ErrorIs(t, err, cause)
	require.EqualError(t, err, "submit: transaction failed "+
		"verification: boom")

	var rerr RuleError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrVerificationFailed, rerr.ErrorCode)

	require.False(t, IsErrorCode(nil, ErrPoolFull))
	require.False(t, IsErrorCode(ErrPoolClosed, ErrPoolFull))
	require.EqualError(t, ruleError(ErrFeeTooLow, "too cheap"), "too cheap")
}

// TestStateString checks state names and residency.
func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "orphan", StateOrphan.String())
	require.Equal(t, "eligible", StateEligible.String())
	require.Equal(t, "conflicted", StateConflicted.String())
	require.Equal(t, "unknown state (42)", State(42).String())

	for _, s := range []State{StateOrphan, StatePending, StateGap,
		StateEligible} {

		require.True(t, s.IsResident(), s.String())
	}
	for _, s := range []State{StateCommitted, StateRemoved,
		StateConflicted} {

		require.False(t, s.IsResident(), s.String())
	}
}

// TestStrictFeeRateReplacement checks that a replacement must beat every
// conflict strictly.
func TestStrictFeeRateReplacement(t *testing.T) {
	t.Parallel()

	conflicts := []ConflictInfo{
		{Hash: chainhash.Hash{1}, FeeRate: 2000},
		{Hash: chainhash.Hash{2}, FeeRate: 3000},
	}
	policy := StrictFeeRateReplacement{}
	require.NoError(t, policy.AllowReplacement(3001, conflicts))
	require.Error(t, policy.AllowReplacement(3000, conflicts))
	require.Error(t, policy.AllowReplacement(2500, conflicts))
	require.NoError(t, policy.AllowReplacement(1, nil))

	require.NoError(t, NoReplacement{}.AllowReplacement(1, nil))
	require.Error(t, NoReplacement{}.AllowReplacement(math.MaxUint64,
		conflicts))
}

// TestSinceMaturity checks maturity of absolute locks against a tip.
func TestSinceMaturity(t *testing.T) {
	t.Parallel()

	tip := ChainContext{Height: 100, Epoch: 7}
	tests := []struct {
		name  string
		since []wire.Since
		want  bool
	}{
		{name: "no lock", since: []wire.Since{0}, want: true},
		{name: "next block", since: []wire.Since{wire.NewSinceBlock(101)},
			want: true},
		{name: "two blocks ahead", since: []wire.Since{
			wire.NewSinceBlock(102)}, want: false},
		{name: "current epoch", since: []wire.Since{
			wire.NewSinceEpoch(7)}, want: true},
		{name: "next epoch", since: []wire.Since{
			wire.NewSinceEpoch(8)}, want: false},
		{name: "relative", since: []wire.Since{
			wire.Since(1<<63 | 1_000)}, want: true},
		{name: "unknown metric", since: []wire.Since{
			wire.Since(uint64(3) << 61)}, want: false},
		{name: "any input immature", since: []wire.Since{
			wire.NewSinceBlock(50), wire.NewSinceEpoch(9)},
			want: false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			msgTx := wire.NewMsgTx(wire.TxVersion)
			for i, since := range test.since {
				op := wire.OutPoint{Index: uint32(i)}
				msgTx.AddTxIn(wire.NewTxIn(&op, since))
			}
			msgTx.AddTxOut(wire.NewTxOut(1000, nil, nil))
			tx := wire.NewTx(msgTx)

			require.Equal(t, test.want, SinceMaturity{}.IsMature(tx, tip))
			require.True(t, AlwaysMature{}.IsMature(tx, tip))
		})
	}
}

// TestConfigValidate checks that incomplete configurations are refused.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, nil)
	tests := []struct {
		name   string
		mutate func(*Config)
		err    string
	}{
		{"no verifier", func(c *Config) { c.Verifier = nil },
			"Verifier is required"},
		{"no fee calculator", func(c *Config) { c.FeeCalculator = nil },
			"FeeCalculator is required"},
		{"no chain view", func(c *Config) { c.ChainView = nil },
			"ChainView is required"},
		{"zero memory", func(c *Config) { c.MaxMemSize = 0 },
			"MaxMemSize must be positive"},
		{"negative orphans", func(c *Config) { c.MaxOrphanTxs = -1 },
			"MaxOrphanTxs must not be negative"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := newTestConfig(h.chain, h.fees, h.verifier, h.clock)
			test.mutate(cfg)
			require.ErrorContains(t, cfg.Validate(), test.err)
		})
	}

	cfg := newTestConfig(h.chain, h.fees, h.verifier, h.clock)
	require.NoError(t, cfg.Validate())
}
