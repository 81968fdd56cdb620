// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/davecgh/go-spew/spew"
	flags "github.com/jessevdk/go-flags"

	"github.com/btcsuite/cyclepool/database/engine"
	"github.com/btcsuite/cyclepool/database/engine/leveldb"
	"github.com/btcsuite/cyclepool/database/engine/pebbledb"
	"github.com/btcsuite/cyclepool/internal/limits"
	"github.com/btcsuite/cyclepool/internal/log"
	"github.com/btcsuite/cyclepool/internal/version"
	"github.com/btcsuite/cyclepool/mempool"
)

var (
	cfg     *config
	psimLog = log.PsimLog
)

// simulator drives a pool through a simulated chain.
type simulator struct {
	pool     *mempool.TxPool
	chain    *simChain
	fees     *simFees
	verifier simVerifier
	work     *workload

	committed int
	reverted  int
	readded   int
}

// newPool creates a pool wired to the simulated chain.
func (s *simulator) newPool() (*mempool.TxPool, error) {
	poolCfg := cfg.poolConfig()
	poolCfg.Verifier = s.verifier
	poolCfg.FeeCalculator = s.fees
	poolCfg.ChainView = s.chain
	pool, err := mempool.New(&poolCfg)
	if err != nil {
		return nil, err
	}
	pool.Subscribe(func(n *mempool.Notification) {
		if n.Type != mempool.NTTxRemoved {
			return
		}
		removed := n.Data.(*mempool.RemovedTx)
		if removed.Reason == mempool.StateConflicted {
			psimLog.Debugf("Transaction %v conflicted: %s",
				removed.Hash, removed.Detail)
		}
	})
	return pool, nil
}

// mineBlock assembles a block from the pool, connects it and notifies the
// pool.
func (s *simulator) mineBlock() error {
	txs := s.pool.SelectForBlock(cfg.BlockSize, cfg.BlockCycles)
	height, err := s.chain.connect(txs)
	if err != nil {
		return err
	}
	if err := s.pool.OnBlockCommitted(height, txs); err != nil {
		return fmt.Errorf("commit of block %d failed: %w", height, err)
	}
	s.committed++
	psimLog.Infof("Block %d committed with %d %s, pool holds %d", height,
		len(txs), log.PickNoun(uint64(len(txs)), "transaction",
			"transactions"), s.pool.Count())
	return nil
}

// revertBlock disconnects the tip block and returns its transactions to the
// pool.
func (s *simulator) revertBlock(ctx context.Context) error {
	height, txs, err := s.chain.disconnect()
	if err != nil {
		return err
	}
	res, err := s.pool.OnBlockReverted(ctx, height, txs)
	if err != nil {
		return fmt.Errorf("revert of block %d failed: %w", height, err)
	}
	s.reverted++
	s.readded += len(res.Readmitted)
	psimLog.Infof("Block %d reverted: %d re-admitted, %d rejected", height,
		len(res.Readmitted), len(res.Rejected))
	for hash, err := range res.Rejected {
		psimLog.Debugf("Reverted transaction %v not re-admitted: %v",
			hash, err)
	}
	return nil
}

// run simulates the configured number of blocks.
func (s *simulator) run(ctx context.Context) error {
	for i := 1; i <= cfg.Blocks; i++ {
		if err := s.work.run(ctx, cfg.Producers, cfg.TxsPerBlock); err != nil {
			return err
		}
		if _, err := s.pool.ProcessPending(ctx); err != nil {
			return err
		}
		if err := s.mineBlock(); err != nil {
			return err
		}
		if cfg.ReorgEvery > 0 && i%cfg.ReorgEvery == 0 {
			if err := s.revertBlock(ctx); err != nil {
				return err
			}
		}
		if err := s.pool.CheckInvariants(); err != nil {
			return fmt.Errorf("pool invariants violated after block "+
				"%d: %w", i, err)
		}
	}
	return nil
}

// openSnapshotDB opens the configured snapshot database, creating it when
// needed.
func openSnapshotDB() (engine.Engine, error) {
	dbPath := filepath.Join(cfg.DataDir, snapshotDBDirPrefix+"_"+cfg.SnapshotDB)
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, err
	}
	psimLog.Infof("Loading snapshot database from '%s'", dbPath)
	switch cfg.SnapshotDB {
	case snapshotDBLevelDB:
		return leveldb.NewDB(dbPath, false)
	case snapshotDBPebble:
		return pebbledb.NewDB(dbPath, false, pebbledb.DefaultCache,
			pebbledb.DefaultHandles)
	}
	return nil, fmt.Errorf("unknown snapshot database type %q", cfg.SnapshotDB)
}

// snapshotRoundTrip persists the pool, replaces it with a fresh pool and
// restores the persisted transactions into it.
func (s *simulator) snapshotRoundTrip(ctx context.Context) error {
	db, err := openSnapshotDB()
	if err != nil {
		return err
	}
	defer db.Close()

	written, err := s.pool.WriteSnapshot(db)
	if err != nil {
		return err
	}
	if err := s.pool.Close(); err != nil {
		return err
	}

	pool, err := s.newPool()
	if err != nil {
		return err
	}
	s.pool, s.work.pool = pool, pool
	restored, err := pool.RestoreSnapshot(ctx, db)
	if err != nil {
		return err
	}
	psimLog.Infof("Snapshot round trip restored %d of %d transactions",
		restored, written)
	return nil
}

// realMain is the real main function for the utility.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is called.
func realMain() error {
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg
	if cfg.ShowVersion {
		fmt.Printf("poolsim version %s (Go version %s %s/%s)\n",
			version.String(), runtime.Version(), runtime.GOOS,
			runtime.GOARCH)
		return nil
	}
	defer func() {
		if log.LogRotator != nil {
			log.LogRotator.Close()
		}
	}()

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	psimLog.Infof("Version %s, seed %d", version.String(), seed)

	chain, funding := newSimChain(cfg.Funding)
	s := &simulator{
		chain:    chain,
		fees:     newSimFees(),
		verifier: simVerifier{failOneIn: 100},
	}
	s.pool, err = s.newPool()
	if err != nil {
		psimLog.Errorf("Unable to create pool: %v", err)
		return err
	}
	s.work = &workload{
		pool:   s.pool,
		chain:  chain,
		fees:   s.fees,
		wallet: &wallet{outs: funding},
		seed:   seed,
	}

	ctx, cancel := interruptContext()
	defer cancel()

	start := time.Now()
	if err := s.run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		psimLog.Errorf("Simulation failed: %v", err)
		return err
	}

	if cfg.SnapshotDB != snapshotDBNone {
		if err := s.snapshotRoundTrip(ctx); err != nil {
			psimLog.Errorf("Snapshot failed: %v", err)
			return err
		}
	}

	stats := s.pool.Stats()
	psimLog.Infof("Simulated %d blocks in %v: %d committed, %d reverted "+
		"(%d re-admitted)", cfg.Blocks, time.Since(start).Round(
		time.Millisecond), s.committed, s.reverted, s.readded)
	psimLog.Infof("Submitted %d transactions, %d accepted, %d left in "+
		"the wallet", s.work.stats.submitted.Load(),
		s.work.stats.accepted.Load(), s.work.wallet.len())
	for code := range s.work.stats.rejected {
		if n := s.work.stats.rejected[code].Load(); n > 0 {
			psimLog.Infof("Rejected with %v: %d", mempool.ErrorCode(code), n)
		}
	}
	psimLog.Infof("Pool: %d resident (%d eligible, %d gap, %d pending, %d "+
		"orphan), %d bytes, %d cycles", stats.ResidentCount,
		stats.EligibleCount, stats.GapCount, stats.PendingCount,
		stats.OrphanCount, stats.TotalSize, stats.TotalCycles)
	psimLog.Debugf("Final pool statistics: %s", spew.Sdump(stats))

	return s.pool.Close()
}

func main() {
	if err := limits.SetLimits(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set limits: %v\n", err)
		os.Exit(1)
	}

	// Work around defer not working after os.Exit()
	if err := realMain(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		if errors.Is(err, errShowSubsystems) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
