package transform

import (
	"bytes"
	"context"
	"path"
	"sync"
	"text/template"

	"github.com/Joker/jade"
	"github.com/spf13/afero"
)

// ViewsOptions configures the template pipeline.
type ViewsOptions struct {
	// Pretty re-indents the rendered markup.
	Pretty bool
	// Extension of the rendered files, with the dot.
	Extension string
	// Data is passed to every template.
	Data map[string]any
}

var jadeTokens sync.Once

// configureJade makes buffered code ("= expr") and dynamic attributes escape
// their value. The rendered text is executed with text/template so static
// markup, including <?php ?> blocks, is emitted verbatim.
func configureJade() {
	jadeTokens.Do(func() {
		jade.Config(jade.ReplaseTokens{
			TagArgEsc:    ` %s="{{ print %s | html }}"`,
			CodeBuffered: "{{ %s | html }}",
		})
	})
}

// Views renders Pug templates. Includes and extends are resolved on the
// task filesystem relative to the including file.
type Views struct {
	fs   afero.Fs
	opts ViewsOptions
}

// NewViews creates the template transformer.
func NewViews(fsys afero.Fs, opts ViewsOptions) *Views {
	if opts.Extension == "" {
		opts.Extension = ".php"
	}
	configureJade()
	return &Views{fs: fsys, opts: opts}
}

func (v *Views) Name() string { return "views" }

func (v *Views) Accept(p string) bool { return path.Ext(p) == ".pug" }

func (v *Views) OutputPath(rel string) string { return ReplaceExt(rel, v.opts.Extension) }

func (v *Views) Transform(_ context.Context, f File) ([]byte, error) {
	text, err := jade.ParseWithFileSystem(f.Path, f.Content, afero.NewHttpFs(v.fs).Dir("/"))
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New(path.Base(f.Path)).Parse(text)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := tmpl.Execute(&out, v.opts.Data); err != nil {
		return nil, err
	}

	if !v.opts.Pretty {
		return out.Bytes(), nil
	}
	return Pretty(out.Bytes())
}
