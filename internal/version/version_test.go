package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetVersionString(t *testing.T) {
	defer func(oldVersion, oldBuildtime string) {
		version, buildtime = oldVersion, oldBuildtime
	}(version, buildtime)
	buildtime = ""

	version = ""
	require.Equal(t, "gitaly-refs, version unknown", GetVersionString())

	version = "1.2.3"
	require.Equal(t, "1.2.3", GetVersion())
	require.Equal(t, "gitaly-refs, version 1.2.3", GetVersionString())

	buildtime = "20210101.120000"
	require.Equal(t, "gitaly-refs, version 1.2.3, built 20210101.120000", GetVersionString())
}
