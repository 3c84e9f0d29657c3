// Package scaffolding writes the starter template project: the build/ source
// tree with its placeholder files, a first page, stylesheet and script, and
// a .siteforge.yml holding the default configuration.
package scaffolding

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path"
	"sort"
	"strings"
	"text/template"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/siteforge/internal/config"
)

// ConfigFile is the project configuration file written by Scaffold.
const ConfigFile = ".siteforge.yml"

// Options controls Scaffold.
type Options struct {
	// Name is the site title used in the starter page.
	Name string
	// Force overwrites files that already exist.
	Force bool
	// Config is serialized into ConfigFile; nil writes config.Default().
	Config *config.Config
}

// Result lists the project-relative files Scaffold wrote and the ones it
// left alone because they already existed.
type Result struct {
	Created []string
	Skipped []string
}

type file struct {
	path     string
	render   func(data templateData) ([]byte, error)
	template string
}

type templateData struct {
	Name string
}

var starterFiles = []file{
	{path: "build/views/index.pug", template: indexPug},
	{path: "build/views/php/time.php", template: timePHP},
	{path: "build/styles/main.scss", template: mainSCSS},
	{path: "build/scripts/main.js", template: mainJS},
	{path: ".gitignore", template: gitignore},
}

// Scaffold creates the template project in fsys, which is rooted at the
// project directory. Existing files are kept unless opts.Force is set.
func Scaffold(fsys afero.Fs, opts Options) (Result, error) {
	var res Result
	if strings.ContainsAny(opts.Name, "\r\n") {
		return res, fmt.Errorf("project name must be a single line")
	}
	if opts.Name == "" {
		opts.Name = "siteforge site"
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	data := templateData{Name: opts.Name}

	files := append([]file(nil), starterFiles...)
	for _, p := range placeholderFiles(cfg.Cleanup.Placeholders, cfg.BuildRoot) {
		render := renderEmpty
		if path.Ext(p) == ".png" {
			render = renderPNG
		}
		files = append(files, file{path: p, render: render})
	}
	files = append(files, file{path: ConfigFile, render: func(templateData) ([]byte, error) {
		return renderConfig(cfg)
	}})

	for _, f := range files {
		exists, err := afero.Exists(fsys, f.path)
		if err != nil {
			return res, fmt.Errorf("checking %s: %w", f.path, err)
		}
		if exists && !opts.Force {
			res.Skipped = append(res.Skipped, f.path)
			continue
		}

		var content []byte
		if f.render != nil {
			content, err = f.render(data)
		} else {
			content, err = renderTemplate(f.path, f.template, data)
		}
		if err != nil {
			return res, fmt.Errorf("rendering %s: %w", f.path, err)
		}

		if err := fsys.MkdirAll(path.Dir(f.path), 0o755); err != nil {
			return res, fmt.Errorf("creating directory for %s: %w", f.path, err)
		}
		if err := afero.WriteFile(fsys, f.path, content, 0o644); err != nil {
			return res, fmt.Errorf("writing %s: %w", f.path, err)
		}
		res.Created = append(res.Created, f.path)
	}

	sort.Strings(res.Created)
	sort.Strings(res.Skipped)
	return res, nil
}

// placeholderFiles returns the placeholders that live in the build tree.
// The others (LICENSE, README.md, .git) belong to the template's own
// repository and are not created.
func placeholderFiles(placeholders []string, buildRoot string) []string {
	prefix := strings.TrimSuffix(path.Clean(buildRoot), "/") + "/"
	var out []string
	for _, p := range placeholders {
		p = path.Clean(p)
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}

func renderTemplate(name, text string, data templateData) ([]byte, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderEmpty(templateData) ([]byte, error) { return []byte{}, nil }

// renderPNG encodes a transparent 1x1 image so the images task has a valid
// input until the placeholder is removed.
func renderPNG(templateData) ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.NRGBA{})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderConfig(cfg *config.Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# siteforge project configuration\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Exists reports whether fsys already holds a project configuration.
func Exists(fsys afero.Fs) bool {
	_, err := fsys.Stat(ConfigFile)
	return err == nil || !os.IsNotExist(err)
}

const indexPug = `doctype html
html(lang="en")
  head
    meta(charset="utf-8")
    meta(name="viewport", content="width=device-width, initial-scale=1")
    title {{.Name}}
    link(rel="stylesheet", href="styles/main.css")
  body
    main.page
      h1 {{.Name}}
      p Edit build/views/index.pug and save to reload.
    script(src="scripts/main.js")
`

const timePHP = `<?php
header('Content-Type: text/plain');
echo date(DATE_ATOM);
`

const mainSCSS = `$accent: #3b6ea5;
$gap: 1rem;

.page {
  display: grid;
  grid-template-columns: 1fr;
  gap: $gap;
  padding: $gap * 2;

  h1 {
    color: $accent;
    user-select: none;
  }
}
`

const mainJS = `const ready = (fn) => {
  if (document.readyState !== 'loading') {
    fn();
    return;
  }
  document.addEventListener('DOMContentLoaded', fn);
};

ready(() => {
  const title = document.querySelector('h1');
  if (title) {
    title.dataset.ready = 'true';
  }
});
`

const gitignore = `public/
.siteforge/
`
