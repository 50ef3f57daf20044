// Package version reports build metadata for quire binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// Set at build time with -ldflags "-X github.com/conneroisu/quire/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime time.Time `json:"build_time,omitempty"`
	Modified  bool      `json:"modified,omitempty"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
}

var vcs = sync.OnceValue(func() map[string]string {
	settings := make(map[string]string)
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return settings
	}
	settings["main.version"] = info.Main.Version
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}

	return settings
})

// GetBuildInfo combines linker-provided values with the VCS stamp the Go
// toolchain embeds.
func GetBuildInfo() BuildInfo {
	built := parseTime(BuildTime)
	if built.IsZero() {
		built = parseTime(vcs()["vcs.time"])
	}

	return BuildInfo{
		Version:   GetVersion(),
		GitCommit: GetGitCommit(),
		BuildTime: built,
		Modified:  vcs()["vcs.modified"] == "true",
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// GetVersion prefers the linker value, then the module version, then a
// dev-<commit> label.
func GetVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if v := vcs()["main.version"]; v != "" && v != "(devel)" {
		return v
	}
	if rev := vcs()["vcs.revision"]; len(rev) >= 7 {
		return "dev-" + rev[:7]
	}

	return "dev"
}

// GetGitCommit returns the full commit hash, or "unknown".
func GetGitCommit() string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}
	if rev := vcs()["vcs.revision"]; rev != "" {
		return rev
	}

	return "unknown"
}

// GetShortVersion is the one-line form used in logs and /healthz.
func GetShortVersion() string {
	v := GetVersion()
	commit := GetGitCommit()
	if len(commit) < 7 || strings.HasPrefix(v, "dev-") {
		return v
	}

	return fmt.Sprintf("%s (%s)", v, commit[:7])
}

// GetDetailedVersion is printed by `quire version`.
func GetDetailedVersion() string {
	info := GetBuildInfo()

	lines := []string{"quire " + info.Version}
	if info.GitCommit != "unknown" {
		commit := info.GitCommit
		if info.Modified {
			commit += " (modified)"
		}
		lines = append(lines, "commit: "+commit)
	}
	if !info.BuildTime.IsZero() {
		lines = append(lines, "built:  "+info.BuildTime.Format(time.RFC3339))
	}
	lines = append(lines, "go:     "+info.GoVersion, "os/arch: "+info.Platform)

	return strings.Join(lines, "\n")
}

func parseTime(s string) time.Time {
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
