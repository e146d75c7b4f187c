package version

import (
	"fmt"
)

var version string
var buildtime string

// GetVersionString returns a standard version header
func GetVersionString() string {
	if buildtime == "" {
		return fmt.Sprintf("gitaly-refs, version %v", GetVersion())
	}
	return fmt.Sprintf("gitaly-refs, version %v, built %v", GetVersion(), GetBuildTime())
}

// GetVersion returns the semver compatible version number. Builds without
// version information report "unknown".
func GetVersion() string {
	if version == "" {
		return "unknown"
	}
	return version
}

// GetBuildTime returns the time at which the build took place
func GetBuildTime() string {
	return buildtime
}
