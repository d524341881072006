package version

import "fmt"

var (
	// Version is the release tag, set with -ldflags "-X .../internal/version.Version=...".
	Version = "dev"
	Commit  = "unknown"
	// BuildDate is RFC 3339.
	BuildDate = "unknown"
)

// Info renders the build metadata as printed by the version command.
func Info() string {
	return fmt.Sprintf("goldrate %s\ncommit: %s\nbuilt: %s\n", Version, Commit, BuildDate)
}
