// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/btcsuite/cyclepool/wire"
)

// MockVerifier is a mock implementation of the Verifier interface.
type MockVerifier struct {
	mock.Mock
}

// Ensure the MockVerifier implements the Verifier interface.
var _ Verifier = (*MockVerifier)(nil)

// Verify executes the scripts of a transaction and reports the cycles the
// execution consumed.
func (m *MockVerifier) Verify(ctx context.Context, tx *wire.Tx,
	chain ChainContext, maxCycles uint64) (uint64, error) {

	args := m.Called(ctx, tx, chain, maxCycles)
	return args.Get(0).(uint64), args.Error(1)
}

// MockFeeCalculator is a mock implementation of the FeeCalculator interface.
type MockFeeCalculator struct {
	mock.Mock
}

// Ensure the MockFeeCalculator implements the FeeCalculator interface.
var _ FeeCalculator = (*MockFeeCalculator)(nil)

// Fee prices a transaction.
func (m *MockFeeCalculator) Fee(tx *wire.Tx) (uint64, error) {
	args := m.Called(tx)
	return args.Get(0).(uint64), args.Error(1)
}

// MockChainView is a mock implementation of the ChainView interface.
type MockChainView struct {
	mock.Mock
}

// Ensure the MockChainView implements the ChainView interface.
var _ ChainView = (*MockChainView)(nil)

// Tip returns the context of the current best block.
func (m *MockChainView) Tip() ChainContext {
	args := m.Called()
	return args.Get(0).(ChainContext)
}

// HaveOutput reports whether the referenced output exists unspent.
func (m *MockChainView) HaveOutput(op wire.OutPoint) bool {
	args := m.Called(op)
	return args.Bool(0)
}
