package common

import (
	"fmt"
)

// Version information (set via -ldflags during build)
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the current version string
func GetVersion() string {
	return Version
}

// GetFullVersion returns version with build info
func GetFullVersion() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", Version, Build, GitCommit)
}

// UserAgentSuffix identifies this build in outbound API requests
func UserAgentSuffix() string {
	return fmt.Sprintf("Pharmyrus/%s", Version)
}
