// Package version reports what binary is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Set with -ldflags "-X github.com/conneroisu/shroot/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string    `json:"version"`
	Commit    string    `json:"commit"`
	Dirty     bool      `json:"dirty,omitempty"`
	BuildTime time.Time `json:"build_time,omitempty"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
}

// Get collects the linker-provided values, falling back to the VCS
// settings embedded by the go tool.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: parseBuildTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	build, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "" || info.Version == "dev" {
		if v := build.Main.Version; v != "" && v != "(devel)" {
			info.Version = v
		}
	}
	for _, setting := range build.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.Commit == "" || info.Commit == "unknown" {
				info.Commit = setting.Value
			}
		case "vcs.modified":
			info.Dirty = setting.Value == "true"
		case "vcs.time":
			if info.BuildTime.IsZero() {
				info.BuildTime = parseBuildTime(setting.Value)
			}
		}
	}
	return info
}

// Release reports whether the binary carries a real version.
func (i Info) Release() bool {
	return i.Version != "" && i.Version != "dev" && !strings.HasPrefix(i.Version, "dev-")
}

// Short is the one-line form: "v1.2.0 (abc1234)" or "dev-abc1234".
func (i Info) Short() string {
	if len(i.Commit) < 7 || i.Commit == "unknown" {
		return i.Version
	}
	commit := i.Commit[:7]
	if i.Dirty {
		commit += "-dirty"
	}
	if !i.Release() {
		return "dev-" + commit
	}
	return fmt.Sprintf("%s (%s)", i.Version, commit)
}

func (i Info) String() string {
	lines := []string{"shroot " + i.Short()}
	if i.Commit != "unknown" && i.Commit != "" {
		lines = append(lines, "commit:   "+i.Commit)
	}
	if !i.BuildTime.IsZero() {
		lines = append(lines, "built:    "+i.BuildTime.Format(time.RFC3339))
	}
	lines = append(lines, "go:       "+i.GoVersion, "platform: "+i.Platform)
	return strings.Join(lines, "\n")
}

func parseBuildTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
