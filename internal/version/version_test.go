package version

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShort(t *testing.T) {
	assert.Equal(t, "v1.0.0", Info{Version: "v1.0.0", GitCommit: "unknown"}.Short())
	assert.Equal(t, "v1.0.0 (abcdef1)", Info{Version: "v1.0.0", GitCommit: "abcdef1234"}.Short())
	assert.Equal(t, "dev", Info{Version: "dev", GitCommit: "abc"}.Short())
}

func TestString(t *testing.T) {
	info := Info{
		Version:   "v1.2.3",
		GitCommit: "abcdef1234",
		BuildTime: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		GoVersion: "go1.24.4",
		Platform:  "linux/amd64",
		Dirty:     true,
	}

	out := info.String()
	assert.True(t, strings.HasPrefix(out, "Version: v1.2.3\n"))
	assert.Contains(t, out, "Commit: abcdef1234 (dirty)")
	assert.Contains(t, out, "Built: 2024-05-01T12:00:00Z")
	assert.Contains(t, out, "Platform: linux/amd64")
}

func TestIsRelease(t *testing.T) {
	assert.True(t, Info{Version: "v1.0.0"}.IsRelease())
	assert.False(t, Info{Version: "dev"}.IsRelease())
	assert.False(t, Info{Version: "dev-abcdef1"}.IsRelease())
}

func TestParseBuildTime(t *testing.T) {
	assert.True(t, parseBuildTime("unknown").IsZero())
	assert.True(t, parseBuildTime("not a time").IsZero())
	assert.Equal(t, 2024, parseBuildTime("2024-05-01T12:00:00Z").Year())
	assert.Equal(t, 5, int(parseBuildTime("2024-05-01 12:00:00").Month()))
}

func TestGet(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}
