// Package version holds build information for the cocgw binaries, injected
// at link time:
//
//	-ldflags "-X github.com/clashkit/cocgw/internal/version.Version=v0.3.0 -X github.com/clashkit/cocgw/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
)

// Set via -ldflags. Local builds keep the dev values.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns a single-line version string, e.g.
// "v0.3.0 (commit abc1234, built 2026-10-01T12:00:00Z, go1.24.1)".
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s)", Version, Commit, Date, runtime.Version())
}

// Short returns just the version tag.
func Short() string {
	return Version
}

// UserAgent is sent on every outbound request to the developer portal and
// the game API.
func UserAgent() string {
	return "cocgw/" + Version
}
