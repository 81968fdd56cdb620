// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

const (
	// TwoInTwoOutCycles is the approximate cycle cost of verifying a
	// transaction with two secp256k1 inputs and two outputs.
	TwoInTwoOutCycles = 3_500_000

	// DefaultMaxMemSize is the default cap on the summed serialized size
	// of resident transactions.
	DefaultMaxMemSize = 20_000_000

	// DefaultMaxCycles is the default cap on the summed verification
	// cycles of resident transactions.
	DefaultMaxCycles = 200_000_000_000

	// DefaultMaxVerifyCacheSize is the default capacity of the Verify
	// Cache.
	DefaultMaxVerifyCacheSize = 100_000

	// DefaultMaxConflictCacheSize is the default capacity of the conflict
	// cache.
	DefaultMaxConflictCacheSize = 1_000

	// DefaultMaxCommittedTxsHashCacheSize is the default capacity of the
	// recently committed transaction cache.
	DefaultMaxCommittedTxsHashCacheSize = 100_000

	// DefaultMinFeeRate is the default minimum fee rate in shannons/KB.
	DefaultMinFeeRate FeeRate = 1_000

	// DefaultMaxTxVerifyCycles is the default cycle limit for a single
	// transaction.
	DefaultMaxTxVerifyCycles = TwoInTwoOutCycles * 20

	// DefaultMaxOrphanTxs is the default number of orphans kept before
	// the oldest is dropped.
	DefaultMaxOrphanTxs = 100

	// DefaultOrphanTTL is the default lifetime of an orphan.
	DefaultOrphanTTL = 20 * time.Minute

	// DefaultMaxAnnouncedCacheSize bounds the filter that suppresses
	// repeated acceptance notifications.
	DefaultMaxAnnouncedCacheSize = 50_000

	// orphanExpireScanInterval is the minimum amount of time in between
	// scans of the orphans to evict expired entries.
	orphanExpireScanInterval = time.Minute * 5
)

// Config is a descriptor containing the transaction pool configuration.
type Config struct {
	// MaxMemSize caps the summed serialized size of resident transactions.
	MaxMemSize uint64

	// MaxCycles caps the summed verification cycles of resident
	// transactions.
	MaxCycles uint64

	// MaxVerifyCacheSize is the Verify Cache capacity.
	MaxVerifyCacheSize int

	// MaxConflictCacheSize is the conflict cache capacity.
	MaxConflictCacheSize int

	// MaxCommittedTxsHashCacheSize is the committed cache capacity.
	MaxCommittedTxsHashCacheSize int

	// MinFeeRate is the minimum fee rate for admission.
	MinFeeRate FeeRate

	// MaxTxVerifyCycles is the per-transaction verification cycle limit.
	MaxTxVerifyCycles uint64

	// MaxOrphanTxs is the number of orphans kept before the oldest is
	// dropped.
	MaxOrphanTxs int

	// OrphanTTL is how long an orphan may wait for its inputs.  Zero
	// disables expiry.
	OrphanTTL time.Duration

	// ConflictCacheTTL bounds how long a conflict is remembered.  Zero
	// keeps records until displaced by capacity.
	ConflictCacheTTL time.Duration

	// MaxAnnouncedCacheSize bounds the acceptance notification filter.
	MaxAnnouncedCacheSize uint

	// VerifyWorkers bounds the number of concurrent verifications used
	// when re-admitting the transactions of a reverted block.
	VerifyWorkers int

	// Verifier executes transaction scripts.
	Verifier Verifier

	// FeeCalculator prices transactions.
	FeeCalculator FeeCalculator

	// ChainView exposes the chain tip and the unspent outputs.
	ChainView ChainView

	// MaturityPolicy decides Eligible versus Gap.  Defaults to
	// SinceMaturity.
	MaturityPolicy MaturityPolicy

	// ReplacementPolicy decides conflicting admissions.  Defaults to
	// StrictFeeRateReplacement.
	ReplacementPolicy ReplacementPolicy

	// Now returns the current time.  Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns a configuration populated with the default limits.
// The collaborators must still be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		MaxMemSize:                   DefaultMaxMemSize,
		MaxCycles:                    DefaultMaxCycles,
		MaxVerifyCacheSize:           DefaultMaxVerifyCacheSize,
		MaxConflictCacheSize:         DefaultMaxConflictCacheSize,
		MaxCommittedTxsHashCacheSize: DefaultMaxCommittedTxsHashCacheSize,
		MinFeeRate:                   DefaultMinFeeRate,
		MaxTxVerifyCycles:            DefaultMaxTxVerifyCycles,
		MaxOrphanTxs:                 DefaultMaxOrphanTxs,
		OrphanTTL:                    DefaultOrphanTTL,
		MaxAnnouncedCacheSize:        DefaultMaxAnnouncedCacheSize,
		VerifyWorkers:                runtime.NumCPU(),
	}
}

// Validate checks the configuration for missing collaborators and unusable
// limits.
func (c *Config) Validate() error {
	switch {
	case c.Verifier == nil:
		return errors.New("Verifier is required")
	case c.FeeCalculator == nil:
		return errors.New("FeeCalculator is required")
	case c.ChainView == nil:
		return errors.New("ChainView is required")
	case c.MaxMemSize == 0:
		return errors.New("MaxMemSize must be positive")
	case c.MaxCycles == 0:
		return errors.New("MaxCycles must be positive")
	case c.MaxTxVerifyCycles == 0:
		return errors.New("MaxTxVerifyCycles must be positive")
	}

	caches := []struct {
		name string
		size int
	}{
		{"MaxVerifyCacheSize", c.MaxVerifyCacheSize},
		{"MaxConflictCacheSize", c.MaxConflictCacheSize},
		{"MaxCommittedTxsHashCacheSize", c.MaxCommittedTxsHashCacheSize},
	}
	for _, cache := range caches {
		if cache.size <= 0 {
			return fmt.Errorf("%s must be positive, got %d",
				cache.name, cache.size)
		}
	}
	if c.MaxOrphanTxs < 0 {
		return fmt.Errorf("MaxOrphanTxs must not be negative, got %d",
			c.MaxOrphanTxs)
	}
	return nil
}

// withDefaults returns a copy of the configuration with unset optional
// fields filled in.
func (c Config) withDefaults() Config {
	if c.MaturityPolicy == nil {
		c.MaturityPolicy = SinceMaturity{}
	}
	if c.ReplacementPolicy == nil {
		c.ReplacementPolicy = StrictFeeRateReplacement{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.VerifyWorkers <= 0 {
		c.VerifyWorkers = 1
	}
	if c.MaxAnnouncedCacheSize == 0 {
		c.MaxAnnouncedCacheSize = DefaultMaxAnnouncedCacheSize
	}
	return c
}
