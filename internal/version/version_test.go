package version

import (
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withVars(t *testing.T, version, commit, built string) {
	t.Helper()
	oldV, oldC, oldB := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = version, commit, built
	t.Cleanup(func() { Version, GitCommit, BuildTime = oldV, oldC, oldB })
}

func TestLinkerValuesWin(t *testing.T) {
	withVars(t, "v1.2.3", "0123456789abcdef", "2024-05-01T10:00:00Z")

	info := GetBuildInfo()
	assert.Equal(t, "v1.2.3", info.Version)
	assert.Equal(t, "0123456789abcdef", info.GitCommit)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), info.BuildTime)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.Equal(t, "v1.2.3 (0123456)", GetShortVersion())

	detailed := GetDetailedVersion()
	assert.True(t, strings.HasPrefix(detailed, "quire v1.2.3\n"))
	assert.Contains(t, detailed, "commit: 0123456789abcdef")
	assert.Contains(t, detailed, "built:  2024-05-01T10:00:00Z")
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		zero bool
	}{
		{"2024-05-01T10:00:00Z", false},
		{"2024-05-01T10:00:00", false},
		{"2024-05-01 10:00:00", false},
		{"unknown", true},
		{"", true},
		{"yesterday", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.zero, parseTime(tt.in).IsZero())
		})
	}
}

func TestDevFallback(t *testing.T) {
	withVars(t, "dev", "unknown", "unknown")

	v := GetVersion()
	assert.True(t, v == "dev" || strings.HasPrefix(v, "dev-") || strings.HasPrefix(v, "v"), v)
	assert.NotEmpty(t, GetGitCommit())
}
