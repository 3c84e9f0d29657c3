package transform

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/js"
)

const jsMediaType = "application/javascript"

type scriptTarget struct {
	engine api.Target
	// year bounds the syntax the minifier may introduce; 0 means any.
	year int
}

var scriptTargets = map[string]scriptTarget{
	"es2015": {api.ES2015, 2015},
	"es2016": {api.ES2016, 2016},
	"es2017": {api.ES2017, 2017},
	"es2018": {api.ES2018, 2018},
	"es2019": {api.ES2019, 2019},
	"es2020": {api.ES2020, 2020},
	"es2021": {api.ES2021, 2021},
	"es2022": {api.ES2022, 2022},
	"esnext": {api.ESNext, 0},
}

// ScriptsOptions configures the script pipeline.
type ScriptsOptions struct {
	// Target is the language level output is lowered to, e.g. "es2015".
	Target string
	Minify bool
}

// Scripts lowers modern JavaScript to the configured target and minifies
// the result without reintroducing syntax newer than the target.
type Scripts struct {
	target api.Target
	minify bool
	m      *minify.M
}

// NewScripts creates the script transformer.
func NewScripts(opts ScriptsOptions) (*Scripts, error) {
	name := strings.ToLower(strings.TrimSpace(opts.Target))
	if name == "" {
		name = "es2015"
	}
	target, ok := scriptTargets[name]
	if !ok {
		return nil, fmt.Errorf("unsupported script target %q", opts.Target)
	}

	m := minify.New()
	m.Add(jsMediaType, &js.Minifier{Version: target.year})
	return &Scripts{target: target.engine, minify: opts.Minify, m: m}, nil
}

func (s *Scripts) Name() string { return "scripts" }

func (s *Scripts) Accept(p string) bool { return path.Ext(p) == ".js" }

func (s *Scripts) OutputPath(rel string) string { return rel }

func (s *Scripts) Transform(_ context.Context, f File) ([]byte, error) {
	result := api.Transform(string(f.Content), api.TransformOptions{
		Loader:     api.LoaderJS,
		Target:     s.target,
		Sourcefile: f.Path,
		LogLevel:   api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return nil, messageError(s.Name(), f.Path, result.Errors[0])
	}
	if !s.minify {
		return result.Code, nil
	}

	out, err := s.m.Bytes(jsMediaType, result.Code)
	if err != nil {
		return nil, fmt.Errorf("minify: %w", err)
	}
	return out, nil
}
