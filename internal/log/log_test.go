// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package log

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"
)

func TestSubsystems(t *testing.T) {
	require.Equal(t, []string{"POOL", "PSDB", "PSIM"}, SupportedSubsystems())

	SetLogLevel("POOL", "trace")
	require.Equal(t, btclog.LevelTrace, PoolLog.Level())

	SetLogLevels("warn")
	for _, logger := range subsystemLoggers {
		require.Equal(t, btclog.LevelWarn, logger.Level())
	}

	// Unknown subsystems are ignored.
	SetLogLevel("NOPE", "trace")

	require.True(t, ValidLogLevel("debug"))
	require.False(t, ValidLogLevel("loud"))
	require.Equal(t, "block", PickNoun(1, "block", "blocks"))
	require.Equal(t, "blocks", PickNoun(0, "block", "blocks"))
}

func TestInitLogRotator(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "poolsim.log")
	require.NoError(t, InitLogRotator(logFile))
	defer func() {
		LogRotator.Close()
		LogRotator = nil
	}()

	PsimLog.Infof("rotator initialized")
}
