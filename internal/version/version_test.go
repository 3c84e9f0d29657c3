package version

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromBuildInfoFillsGaps(t *testing.T) {
	info := Info{Version: "dev"}
	fromBuildInfo(&info, &debug.BuildInfo{
		Main: debug.Module{Version: "v1.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.time", Value: "2024-05-01T10:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	})

	assert.Equal(t, "v1.4.0", info.Version)
	assert.Equal(t, "0123456789abcdef", info.Commit)
	assert.True(t, info.Dirty)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), info.BuildTime.UTC())
}

func TestFromBuildInfoKeepsLinkerValues(t *testing.T) {
	info := Info{Version: "v2.0.0", Commit: "feedface"}
	fromBuildInfo(&info, &debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "other"}},
	})

	assert.Equal(t, "v2.0.0", info.Version)
	assert.Equal(t, "feedface", info.Commit)
}

func TestShort(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{"bare", Info{Version: "dev"}, "dev"},
		{"commit", Info{Version: "v1.0.0", Commit: "0123456789"}, "v1.0.0 (0123456)"},
		{"short commit", Info{Version: "v1.0.0", Commit: "abc"}, "v1.0.0 (abc)"},
		{"dirty", Info{Version: "dev", Commit: "0123456789", Dirty: true}, "dev (0123456) (dirty)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.Short())
		})
	}
}

func TestDetailed(t *testing.T) {
	info := Info{
		Version:   "v1.0.0",
		Commit:    "0123456789",
		BuildTime: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		GoVersion: "go1.24.4",
		Platform:  "linux/amd64",
	}
	lines := strings.Split(info.Detailed(), "\n")
	assert.Equal(t, []string{
		"Version: v1.0.0",
		"Commit: 0123456789",
		"Built: 2024-01-02T03:04:05Z",
		"Go: go1.24.4",
		"Platform: linux/amd64",
	}, lines)
}

func TestIsRelease(t *testing.T) {
	assert.False(t, Info{Version: "dev"}.IsRelease())
	assert.False(t, Info{Version: "dev-0123456"}.IsRelease())
	assert.True(t, Info{Version: "v0.3.1"}.IsRelease())
}

func TestParseTime(t *testing.T) {
	assert.False(t, parseTime("2024-01-02T03:04:05Z").IsZero())
	assert.False(t, parseTime("2024-01-02 03:04:05").IsZero())
	assert.True(t, parseTime("").IsZero())
	assert.True(t, parseTime("yesterday").IsZero())
}

func TestGet(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
	assert.True(t, strings.HasPrefix(info.String(), "siteforge "))
}
