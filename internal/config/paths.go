package config

import (
	"fmt"
	"sort"
	"strings"
)

// Category names an asset family of the pipeline.
type Category string

const (
	Styles  Category = "styles"
	Scripts Category = "scripts"
	Views   Category = "views"
	Pages   Category = "pages"
	Images  Category = "images"
	Fonts   Category = "fonts"
	Sounds  Category = "sounds"
	Videos  Category = "videos"
)

// Categories returns every known category in pipeline order.
func Categories() []Category {
	return []Category{Styles, Views, Scripts, Pages, Images, Fonts, Sounds, Videos}
}

// ExcludePrefix marks a source pattern whose matches are removed from the
// result set.
const ExcludePrefix = "!"

// PathSpec is the source and destination record of one category.
type PathSpec struct {
	Sources []string `yaml:"src" mapstructure:"src"`
	Dest    string   `yaml:"dest" mapstructure:"dest"`
	// Watch overrides Sources for the watch supervisor.
	Watch []string `yaml:"watch,omitempty" mapstructure:"watch"`
}

// WatchPatterns returns the patterns that trigger a rebuild of the category.
func (p PathSpec) WatchPatterns() []string {
	if len(p.Watch) > 0 {
		return append([]string(nil), p.Watch...)
	}
	return append([]string(nil), p.Sources...)
}

func (p PathSpec) clone() PathSpec {
	return PathSpec{
		Sources: append([]string(nil), p.Sources...),
		Dest:    p.Dest,
		Watch:   append([]string(nil), p.Watch...),
	}
}

// PathTable maps categories to their PathSpec. The zero value is empty and a
// built table never changes; lookups hand out copies.
type PathTable struct {
	specs map[Category]PathSpec
}

// NewPathTable copies specs into a new table.
func NewPathTable(specs map[Category]PathSpec) PathTable {
	t := PathTable{specs: make(map[Category]PathSpec, len(specs))}
	for c, s := range specs {
		t.specs[c] = s.clone()
	}
	return t
}

// DefaultPathTable is the layout of the stock template project.
func DefaultPathTable() PathTable {
	return NewPathTable(map[Category]PathSpec{
		Pages: {
			Sources: []string{"build/views/php/*.php"},
			Dest:    "public",
		},
		Views: {
			Sources: []string{"build/views/*.pug", "!build/views/blocks/**", "!build/views/layout/**"},
			Dest:    "public",
			Watch:   []string{"build/views/**/*.pug"},
		},
		Scripts: {
			Sources: []string{"build/scripts/**/*.js"},
			Dest:    "public/scripts",
		},
		Styles: {
			Sources: []string{"build/styles/**/*.scss"},
			Dest:    "public/styles",
		},
		Images: {
			Sources: []string{"build/images/*.{png,jpeg,jpg,gif,svg}"},
			Dest:    "public/images",
		},
		Fonts: {
			Sources: []string{"build/fonts/*"},
			Dest:    "public/fonts",
		},
		Sounds: {
			Sources: []string{"build/sounds/*"},
			Dest:    "public/sounds",
		},
		Videos: {
			Sources: []string{"build/videos/*"},
			Dest:    "public/videos",
		},
	})
}

// Lookup returns a copy of the spec for c.
func (t PathTable) Lookup(c Category) (PathSpec, bool) {
	s, ok := t.specs[c]
	if !ok {
		return PathSpec{}, false
	}
	return s.clone(), true
}

// Categories returns the categories present in the table, sorted.
func (t PathTable) Categories() []Category {
	out := make([]Category, 0, len(t.specs))
	for c := range t.specs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of categories.
func (t PathTable) Len() int { return len(t.specs) }

// Validate checks that every category has sources and that every destination
// lies under outputRoot, so deleting outputRoot resets all of them.
func (t PathTable) Validate(outputRoot string) error {
	for _, c := range t.Categories() {
		s := t.specs[c]
		if len(s.Sources) == 0 {
			return fmt.Errorf("%s: no source patterns", c)
		}
		patterns := make([]string, 0, len(s.Sources)+len(s.Watch))
		patterns = append(patterns, s.Sources...)
		patterns = append(patterns, s.Watch...)
		included := 0
		for _, src := range patterns {
			pattern := strings.TrimPrefix(src, ExcludePrefix)
			if !strings.HasPrefix(src, ExcludePrefix) {
				included++
			}
			if err := validatePath(pattern); err != nil {
				return fmt.Errorf("%s: source %q: %w", c, src, err)
			}
		}
		if included == 0 {
			return fmt.Errorf("%s: only exclusion patterns", c)
		}
		if err := validatePath(s.Dest); err != nil {
			return fmt.Errorf("%s: dest: %w", c, err)
		}
		if !within(s.Dest, outputRoot) {
			return fmt.Errorf("%s: dest %q is outside output root %q", c, s.Dest, outputRoot)
		}
	}
	return nil
}

func (t PathTable) raw() map[string]PathSpec {
	out := make(map[string]PathSpec, len(t.specs))
	for c, s := range t.specs {
		out[string(c)] = s.clone()
	}
	return out
}

func parseRaw(raw map[string]PathSpec) map[Category]PathSpec {
	out := make(map[Category]PathSpec, len(raw))
	for name, s := range raw {
		out[Category(strings.ToLower(name))] = s
	}
	return out
}
