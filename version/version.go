// Package version reports clpipe build information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/teranos/clpipe/version.Version=v1.2.0 -X github.com/teranos/clpipe/version.CommitHash=$(git rev-parse HEAD)"
var (
	Version    = "dev"
	CommitHash = ""
	BuildTime  = "unknown"
)

// Info is the build information printed by `clpipe version` and stamped into dumped configs.
type Info struct {
	Version    string `json:"version" yaml:"version"`
	CommitHash string `json:"commit_hash" yaml:"commit_hash"`
	BuildTime  string `json:"build_time" yaml:"build_time"`
	GoVersion  string `json:"go_version" yaml:"go_version"`
	Platform   string `json:"platform" yaml:"platform"`
}

// Get returns the current build information. Without ldflags the commit falls
// back to the VCS revision the Go toolchain embeds.
func Get() Info {
	commit := CommitHash
	built := BuildTime
	if commit == "" {
		commit, built = fromBuildInfo(built)
	}
	return Info{
		Version:    Version,
		CommitHash: commit,
		BuildTime:  built,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func fromBuildInfo(built string) (string, string) {
	commit := "unknown"
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return commit, built
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
		case "vcs.time":
			if built == "unknown" {
				built = s.Value
			}
		}
	}
	return commit, built
}

func (i Info) String() string {
	return fmt.Sprintf("clpipe %s (commit %s, built %s, %s %s)", i.Version, i.Short(), i.BuildTime, i.GoVersion, i.Platform)
}

// Short returns the abbreviated commit hash.
func (i Info) Short() string {
	if len(i.CommitHash) > 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
