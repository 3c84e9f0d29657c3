package glob

import (
	"path"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func projectFs(t *testing.T, files ...string) afero.Fs {
	t.Helper()
	fsys := afero.NewBasePathFs(afero.NewOsFs(), t.TempDir())
	for _, f := range files {
		require.NoError(t, fsys.MkdirAll(path.Dir(f), 0o755))
		require.NoError(t, afero.WriteFile(fsys, f, []byte(f), 0o644))
	}
	return fsys
}

func paths(ms []Match) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Path)
	}
	return out
}

func TestResolveViewsExcludesBlocksAndLayouts(t *testing.T) {
	fsys := projectFs(t,
		"build/views/index.pug",
		"build/views/about.pug",
		"build/views/blocks/header.pug",
		"build/views/layout/default.pug",
		"build/views/notes.txt",
	)

	ps, err := Compile([]string{"build/views/*.pug", "!build/views/blocks/**", "!build/views/layout/**"})
	require.NoError(t, err)

	got, err := ps.Resolve(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"build/views/about.pug", "build/views/index.pug"}, paths(got))
	assert.Equal(t, "build/views", got[0].Base)
	assert.Equal(t, "about.pug", got[0].Rel)
}

func TestResolveKeepsNestedLayoutBelowBase(t *testing.T) {
	fsys := projectFs(t,
		"build/styles/main.scss",
		"build/styles/themes/dark.scss",
	)

	got, err := MustCompile("build/styles/**/*.scss").Resolve(fsys)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "main.scss", got[0].Rel)
	assert.Equal(t, "themes/dark.scss", got[1].Rel)
}

func TestResolveBraces(t *testing.T) {
	fsys := projectFs(t,
		"build/images/a.png",
		"build/images/b.jpg",
		"build/images/c.svg",
		"build/images/d.bmp",
	)

	got, err := MustCompile("build/images/*.{png,jpeg,jpg,gif,svg}").Resolve(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"build/images/a.png", "build/images/b.jpg", "build/images/c.svg"}, paths(got))
}

func TestResolveFilesOnly(t *testing.T) {
	fsys := projectFs(t, "build/fonts/a.woff", "build/fonts/sub/b.woff")

	got, err := MustCompile("build/fonts/*").Resolve(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"build/fonts/a.woff"}, paths(got))
}

func TestResolveMissingBase(t *testing.T) {
	fsys := projectFs(t)

	got, err := MustCompile("build/videos/*").Resolve(fsys)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveDeduplicates(t *testing.T) {
	fsys := projectFs(t, "build/scripts/app.js")

	got, err := MustCompile("build/scripts/*.js", "build/scripts/**/*.js").Resolve(fsys)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "app.js", got[0].Rel)
}

func TestMatch(t *testing.T) {
	ps := MustCompile("build/views/**/*.pug", "!build/views/drafts/**")

	tests := []struct {
		name string
		want bool
	}{
		{"build/views/index.pug", true},
		{"build/views/blocks/header.pug", true},
		{"./build/views/index.pug", true},
		{"build/views/drafts/x.pug", false},
		{"build/views/index.html", false},
		{"build/styles/main.scss", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ps.Match(tt.name))
		})
	}
}

func TestCompileRejectsInvalid(t *testing.T) {
	_, err := Compile([]string{"build/[a-"})
	assert.Error(t, err)
}

func TestBase(t *testing.T) {
	assert.Equal(t, "build/styles", Base("build/styles/**/*.scss"))
	assert.Equal(t, "build/views/blocks", Base("!build/views/blocks/**"))
	assert.Equal(t, "", Base("*.php"))
}
