// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	flags "github.com/jessevdk/go-flags"

	"github.com/btcsuite/cyclepool/internal/log"
	"github.com/btcsuite/cyclepool/mempool"
)

const (
	defaultLogFilename  = "poolsim.log"
	defaultLogLevel     = "info"
	defaultBlocks       = 50
	defaultProducers    = 4
	defaultTxsPerBlock  = 200
	defaultBlockSize    = 200_000
	defaultBlockCycles  = 3_500_000_000
	defaultReorgEvery   = 10
	defaultFunding      = 2000
	defaultSnapshotDB   = "leveldb"
	snapshotDBNone      = "none"
	snapshotDBLevelDB   = "leveldb"
	snapshotDBPebble    = "pebble"
	snapshotDBDirPrefix = "snapshot"
)

var (
	defaultHomeDir = poolsimHomeDir()
	defaultDataDir = filepath.Join(defaultHomeDir, "data")
	defaultLogDir  = filepath.Join(defaultHomeDir, "logs")
	knownDBTypes   = []string{snapshotDBLevelDB, snapshotDBPebble, snapshotDBNone}
)

// config defines the configuration options for poolsim.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	DataDir     string `short:"b" long:"datadir" description:"Directory to store the pool snapshot"`
	LogDir      string `long:"logdir" description:"Directory to log output"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	MaxMemSize                   uint64 `long:"maxmemsize" description:"Cap on the summed serialized size of resident transactions in bytes"`
	MaxCycles                    uint64 `long:"maxcycles" description:"Cap on the summed verification cycles of resident transactions"`
	MaxVerifyCacheSize           int    `long:"verifycachesize" description:"Number of verification results to remember"`
	MaxConflictCacheSize         int    `long:"conflictcachesize" description:"Number of conflicted transaction hashes to remember"`
	MaxCommittedTxsHashCacheSize int    `long:"committedcachesize" description:"Number of committed transaction hashes to remember"`
	MinFeeRate                   uint64 `long:"minfeerate" description:"Minimum fee rate in shannons/KB"`
	MaxTxVerifyCycles            uint64 `long:"maxtxverifycycles" description:"Cycle limit for verifying a single transaction"`
	MaxOrphanTxs                 int    `long:"orphans" description:"Number of orphans to keep before the oldest is dropped"`

	Blocks      int    `long:"blocks" description:"Number of blocks to simulate"`
	Producers   int    `long:"producers" description:"Number of concurrent transaction producers"`
	TxsPerBlock int    `long:"txsperblock" description:"Transactions submitted between blocks"`
	BlockSize   uint64 `long:"blocksize" description:"Size budget of each assembled block in bytes"`
	BlockCycles uint64 `long:"blockcycles" description:"Cycle budget of each assembled block"`
	ReorgEvery  int    `long:"reorgevery" description:"Revert the last block every N blocks -- Use 0 to disable reorgs"`
	Funding     int    `long:"funding" description:"Number of spendable outputs in the simulated genesis block"`
	SnapshotDB  string `long:"snapshotdb" description:"Database backend to snapshot the pool into at the end of the run {leveldb, pebble, none}"`
	Seed        uint64 `long:"seed" description:"Seed of the workload generator -- Use 0 for a random seed"`
}

// poolsimHomeDir returns an OS appropriate home directory for poolsim.
func poolsimHomeDir() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "Poolsim")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".poolsim")
	}
	return "."
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// validDBType returns whether or not dbType is a supported snapshot database
// type.
func validDBType(dbType string) bool {
	return slices.Contains(knownDBTypes, dbType)
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !log.ValidLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", debugLevel)
		}
		log.SetLogLevels(debugLevel)
		return nil
	}

	// Split the specified string into subsystem/level pairs while
	// detecting issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return fmt.Errorf("the specified debug level contains an "+
				"invalid subsystem/level pair [%v]", logLevelPair)
		}

		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		if !slices.Contains(log.SupportedSubsystems(), subsysID) {
			return fmt.Errorf("the specified subsystem [%v] is "+
				"invalid -- supported subsystems %v", subsysID,
				log.SupportedSubsystems())
		}
		if !log.ValidLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", logLevel)
		}

		log.SetLogLevel(subsysID, logLevel)
	}
	return nil
}

// errShowSubsystems is returned by loadConfig when the user only asked for
// the list of logging subsystems.
var errShowSubsystems = errors.New("subsystems listed")

// loadConfig initializes and parses the config using command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Override with command line options
//  3. Validate the combination and create the log rotator
func loadConfig() (*config, []string, error) {
	poolDefaults := mempool.DefaultConfig()
	cfg := config{
		DataDir:                      defaultDataDir,
		LogDir:                       defaultLogDir,
		DebugLevel:                   defaultLogLevel,
		MaxMemSize:                   poolDefaults.MaxMemSize,
		MaxCycles:                    poolDefaults.MaxCycles,
		MaxVerifyCacheSize:           poolDefaults.MaxVerifyCacheSize,
		MaxConflictCacheSize:         poolDefaults.MaxConflictCacheSize,
		MaxCommittedTxsHashCacheSize: poolDefaults.MaxCommittedTxsHashCacheSize,
		MinFeeRate:                   uint64(poolDefaults.MinFeeRate),
		MaxTxVerifyCycles:            poolDefaults.MaxTxVerifyCycles,
		MaxOrphanTxs:                 poolDefaults.MaxOrphanTxs,
		Blocks:                       defaultBlocks,
		Producers:                    defaultProducers,
		TxsPerBlock:                  defaultTxsPerBlock,
		BlockSize:                    defaultBlockSize,
		BlockCycles:                  defaultBlockCycles,
		ReorgEvery:                   defaultReorgEvery,
		Funding:                      defaultFunding,
		SnapshotDB:                   defaultSnapshotDB,
	}

	parser := flags.NewParser(&cfg, flags.Default)
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	if cfg.ShowVersion {
		return &cfg, remainingArgs, nil
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", log.SupportedSubsystems())
		return nil, nil, errShowSubsystems
	}

	funcName := "loadConfig"
	usageErr := func(format string, args ...interface{}) error {
		err := fmt.Errorf("%s: "+format, append([]interface{}{funcName},
			args...)...)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return err
	}

	if !validDBType(cfg.SnapshotDB) {
		return nil, nil, usageErr("the specified database type [%v] "+
			"is invalid -- supported types %v", cfg.SnapshotDB,
			knownDBTypes)
	}
	if cfg.Producers < 1 {
		return nil, nil, usageErr("at least one producer is required")
	}
	if cfg.Blocks < 1 {
		return nil, nil, usageErr("at least one block is required")
	}
	if cfg.Funding < cfg.Producers {
		return nil, nil, usageErr("need at least one funding output "+
			"per producer, got %d for %d producers", cfg.Funding,
			cfg.Producers)
	}
	if cfg.ReorgEvery < 0 {
		return nil, nil, usageErr("reorgevery must not be negative")
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	if err := log.InitLogRotator(filepath.Join(cfg.LogDir,
		defaultLogFilename)); err != nil {

		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, nil, usageErr("%v", err)
	}

	return &cfg, remainingArgs, nil
}

// poolConfig maps the command line options onto a pool configuration.
func (c *config) poolConfig() mempool.Config {
	poolCfg := mempool.DefaultConfig()
	poolCfg.MaxMemSize = c.MaxMemSize
	poolCfg.MaxCycles = c.MaxCycles
	poolCfg.MaxVerifyCacheSize = c.MaxVerifyCacheSize
	poolCfg.MaxConflictCacheSize = c.MaxConflictCacheSize
	poolCfg.MaxCommittedTxsHashCacheSize = c.MaxCommittedTxsHashCacheSize
	poolCfg.MinFeeRate = mempool.FeeRate(c.MinFeeRate)
	poolCfg.MaxTxVerifyCycles = c.MaxTxVerifyCycles
	poolCfg.MaxOrphanTxs = c.MaxOrphanTxs
	return poolCfg
}
