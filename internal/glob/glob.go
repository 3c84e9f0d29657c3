// Package glob resolves source globs against a filesystem.
//
// A pattern list mixes include globs with exclusions prefixed by "!". Each
// resolved file remembers the static base of the glob that produced it so
// that callers can mirror the directory layout below that base.
package glob

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// ExcludePrefix marks an exclusion pattern.
const ExcludePrefix = "!"

// Match is one file selected by a PatternSet.
type Match struct {
	// Path is the slash separated path relative to the filesystem root.
	Path string
	// Base is the static directory prefix of the glob that matched.
	Base string
	// Rel is Path relative to Base.
	Rel string
}

// PatternSet is a compiled list of include and exclude globs.
type PatternSet struct {
	include []string
	exclude []string
}

// Compile splits patterns into includes and exclusions and validates each.
func Compile(patterns []string) (*PatternSet, error) {
	ps := &PatternSet{}
	for _, raw := range patterns {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}
		neg := strings.HasPrefix(p, ExcludePrefix)
		if neg {
			p = strings.TrimPrefix(p, ExcludePrefix)
		}
		p = clean(p)
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob %q", raw)
		}
		if neg {
			ps.exclude = append(ps.exclude, p)
		} else {
			ps.include = append(ps.include, p)
		}
	}
	return ps, nil
}

// MustCompile is Compile for static pattern lists.
func MustCompile(patterns ...string) *PatternSet {
	ps, err := Compile(patterns)
	if err != nil {
		panic(err)
	}
	return ps
}

// Includes returns the include globs.
func (ps *PatternSet) Includes() []string {
	return append([]string(nil), ps.include...)
}

// Match reports whether name is selected by at least one include and by no
// exclusion. name is a slash separated path relative to the project root.
func (ps *PatternSet) Match(name string) bool {
	name = clean(name)
	if ps.excluded(name) {
		return false
	}
	for _, p := range ps.include {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

func (ps *PatternSet) excluded(name string) bool {
	for _, p := range ps.exclude {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Resolve lists the regular files selected by the set, sorted by path. A
// file matched by several includes is reported once, with the base of the
// first include that matched it. Missing base directories yield no matches;
// any other I/O failure is returned.
func (ps *PatternSet) Resolve(fsys afero.Fs) ([]Match, error) {
	iofs := afero.NewIOFS(fsys)

	seen := make(map[string]struct{})
	var out []Match
	for _, p := range ps.include {
		base, _ := doublestar.SplitPattern(p)
		if base == "." {
			base = ""
		}
		if base != "" {
			if _, err := fs.Stat(iofs, base); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return nil, fmt.Errorf("failed to stat %s: %w", base, err)
			}
		}

		names, err := doublestar.Glob(iofs, p, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		for _, name := range names {
			if _, dup := seen[name]; dup || ps.excluded(name) {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, Match{Path: name, Base: base, Rel: relTo(base, name)})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Base returns the static directory prefix of pattern.
func Base(pattern string) string {
	base, _ := doublestar.SplitPattern(clean(strings.TrimPrefix(pattern, ExcludePrefix)))
	if base == "." {
		return ""
	}
	return base
}

func relTo(base, name string) string {
	if base == "" {
		return name
	}
	return strings.TrimPrefix(name, base+"/")
}

func clean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	return strings.TrimPrefix(p, "./")
}

