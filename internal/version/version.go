package version

import (
	"fmt"
	"runtime"
)

// Build metadata, overridden via ldflags at release time:
//
//	-X github.com/plansmith/plansmith/internal/version.Version=v1.2.3
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info is the full build description, serializable for --output json.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Date      string `json:"date" yaml:"date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// GetInfo captures the build variables plus the runtime platform.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String renders the one-line form the version command prints. Long
// commit hashes are shortened to eight characters.
func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 8 {
		commit = commit[:8]
	}
	return fmt.Sprintf("plansmith %s (%s) built %s with %s for %s",
		i.Version, commit, i.Date, i.GoVersion, i.Platform)
}

// Short returns just the version number.
func (i Info) Short() string {
	return i.Version
}
