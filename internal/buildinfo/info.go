package buildinfo

import "fmt"

// Set via -ldflags "-X github.com/cleared-dev/invoicer/internal/buildinfo.Version=..." at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String describes the running binary for --version output.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}
