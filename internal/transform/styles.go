package transform

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/bep/golibsass/libsass"
	"github.com/bep/golibsass/libsass/libsasserrors"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/afero"

	sferrors "github.com/conneroisu/siteforge/internal/errors"
)

// StylesOptions configures the stylesheet pipeline.
type StylesOptions struct {
	// Browsers is the browserslist query prefixes are generated for.
	Browsers []string
	// Grid adds the IE -ms-grid declarations.
	Grid bool
	// IncludePaths are searched for imports after the importing file's
	// directory.
	IncludePaths []string
}

// Styles compiles SCSS to CSS and adds vendor prefixes.
type Styles struct {
	fs      afero.Fs
	opts    StylesOptions
	engines []api.Engine
}

// NewStyles creates the stylesheet transformer. Imports are read from fsys.
func NewStyles(fsys afero.Fs, opts StylesOptions) (*Styles, error) {
	engines, err := Engines(opts.Browsers)
	if err != nil {
		return nil, err
	}
	return &Styles{fs: fsys, opts: opts, engines: engines}, nil
}

func (s *Styles) Name() string { return "styles" }

// Accept skips partials; they are only compiled through imports.
func (s *Styles) Accept(p string) bool {
	base := path.Base(p)
	return strings.HasSuffix(base, ".scss") && !strings.HasPrefix(base, "_")
}

func (s *Styles) OutputPath(rel string) string { return ReplaceExt(rel, ".css") }

func (s *Styles) Transform(ctx context.Context, f File) ([]byte, error) {
	transpiler, err := libsass.New(libsass.Options{
		OutputStyle:  libsass.ExpandedStyle,
		IncludePaths: s.opts.IncludePaths,
		ImportResolver: func(url, prev string) (string, string, bool) {
			return s.resolveImport(f.Path, url, prev)
		},
	})
	if err != nil {
		return nil, err
	}

	res, err := transpiler.Execute(string(f.Content))
	if err != nil {
		te := sferrors.NewTransformError(s.Name(), f.Path, err)
		var se libsasserrors.Error
		if errors.As(err, &se) {
			te.Message = strings.TrimSpace(se.Message)
			te.At(se.Line, se.Column)
		}
		return nil, te
	}

	css, err := s.prefix(f.Path, res.CSS)
	if err != nil {
		return nil, err
	}
	if s.opts.Grid {
		return prefixGrid(css)
	}
	return css, nil
}

// prefix runs the compiled CSS through esbuild with the browser targets,
// which adds the vendor prefixed declarations those engines need.
func (s *Styles) prefix(file, css string) ([]byte, error) {
	result := api.Transform(css, api.TransformOptions{
		Loader:     api.LoaderCSS,
		Engines:    s.engines,
		Sourcefile: file,
		LogLevel:   api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return nil, messageError(s.Name(), file, result.Errors[0])
	}
	return result.Code, nil
}

// resolveImport finds an @import target on the task filesystem using the
// Sass lookup rules: the plain name, a .scss extension, then the _partial
// variants, first next to the importing file and then in the include paths.
func (s *Styles) resolveImport(entry, url, prev string) (string, string, bool) {
	if strings.HasSuffix(url, ".css") || strings.Contains(url, "://") {
		return "", "", false
	}

	importer := prev
	if importer == "" || importer == "stdin" {
		importer = entry
	}
	dirs := append([]string{path.Dir(importer)}, s.opts.IncludePaths...)

	for _, dir := range dirs {
		for _, candidate := range importCandidates(path.Join(dir, url)) {
			data, err := afero.ReadFile(s.fs, candidate)
			if err == nil {
				return candidate, string(data), true
			}
		}
	}
	return "", "", false
}

func importCandidates(p string) []string {
	dir, name := path.Split(p)
	out := []string{}
	if path.Ext(name) == ".scss" {
		out = append(out, p, path.Join(dir, "_"+name))
	} else {
		out = append(out,
			p+".scss",
			path.Join(dir, "_"+name+".scss"),
			path.Join(p, "_index.scss"),
			path.Join(p, "index.scss"),
		)
	}
	return out
}

// messageError converts the first esbuild diagnostic into a TransformError.
func messageError(task, file string, msg api.Message) error {
	te := sferrors.NewTransformError(task, file, fmt.Errorf("%s", msg.Text))
	if msg.Location != nil {
		te.At(msg.Location.Line, msg.Location.Column+1)
	}
	return te
}
