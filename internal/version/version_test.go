// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	prevPre, prevBuild := PreRelease, BuildMetadata
	defer func() {
		PreRelease, BuildMetadata = prevPre, prevBuild
	}()

	PreRelease, BuildMetadata = "", ""
	require.Equal(t, "0.3.0", String())

	PreRelease, BuildMetadata = "rc.1", "linux_amd64"
	require.Equal(t, "0.3.0-rc1+linuxamd64", String())

	PreRelease, BuildMetadata = "beta", "git.1a2b"
	require.Equal(t, "0.3.0-beta+git.1a2b", String())
}
