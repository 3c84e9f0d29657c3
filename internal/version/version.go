// Package version reports the build identity of the siteforge binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Set at build time with -ldflags "-X".
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// Info describes the running binary.
type Info struct {
	Version   string    `json:"version"`
	Commit    string    `json:"commit,omitempty"`
	Dirty     bool      `json:"dirty,omitempty"`
	BuildTime time.Time `json:"build_time,omitempty"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
}

// Get collects the build information, falling back to the VCS stamps the
// Go toolchain embeds when ldflags were not set.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: parseTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fromBuildInfo(&info, bi)
	}
	return info
}

func fromBuildInfo(info *Info, bi *debug.BuildInfo) {
	if (info.Version == "" || info.Version == "dev") && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuildTime.IsZero() {
				info.BuildTime = parseTime(s.Value)
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	if info.Version == "" {
		info.Version = "dev"
	}
}

// IsRelease reports whether the binary was built from a tagged version.
func (i Info) IsRelease() bool {
	return i.Version != "dev" && !strings.HasPrefix(i.Version, "dev-")
}

// Short is the one-line version, e.g. "v1.2.0 (abc1234)".
func (i Info) Short() string {
	s := i.Version
	if c := shortCommit(i.Commit); c != "" {
		s += " (" + c + ")"
	}
	if i.Dirty {
		s += " (dirty)"
	}
	return s
}

// Detailed lists every known field, one per line.
func (i Info) Detailed() string {
	lines := []string{"Version: " + i.Version}
	if i.Commit != "" {
		lines = append(lines, "Commit: "+i.Commit)
	}
	if !i.BuildTime.IsZero() {
		lines = append(lines, "Built: "+i.BuildTime.UTC().Format(time.RFC3339))
	}
	lines = append(lines,
		"Go: "+i.GoVersion,
		"Platform: "+i.Platform,
	)
	if i.Dirty {
		lines = append(lines, "Modified: true")
	}
	return strings.Join(lines, "\n")
}

func (i Info) String() string {
	return fmt.Sprintf("siteforge %s", i.Short())
}

func shortCommit(c string) string {
	if len(c) > 7 {
		return c[:7]
	}
	return c
}

// parseTime accepts RFC 3339 and a few common variants; anything else is
// the zero time.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
