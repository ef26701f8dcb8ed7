// Package version holds build metadata injected at link time:
// go build -ldflags "-X git.home.luguber.info/inful/mllt/internal/version.Version=v0.3.0".
package version

import "fmt"

// Version of the mllt binary.
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String is the text printed by --version.
func String() string {
	if GitCommit == "unknown" && BuildTime == "unknown" {
		return "mllt " + Version
	}
	return fmt.Sprintf("mllt %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
