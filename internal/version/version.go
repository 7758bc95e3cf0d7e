package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/mre/envy/internal/version.GitVersion=...".
var (
	GitVersion    = "dev"
	BuildMetadata = ""
	GitCommit     = ""
)

func GetVersion() string {
	if BuildMetadata != "" {
		return fmt.Sprintf("%s+%s", GitVersion, BuildMetadata)
	}
	return GitVersion
}

// String is the one-line form printed by --version.
func String() string {
	s := "envy " + GetVersion()
	if GitCommit != "" {
		s += " (" + GitCommit + ")"
	}
	return fmt.Sprintf("%s %s/%s", s, runtime.GOOS, runtime.GOARCH)
}
