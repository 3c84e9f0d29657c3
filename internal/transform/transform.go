// Package transform holds the per-file converters run by asset tasks.
//
// A Transformer turns the content of one source file into the content of
// one output file. It never touches the filesystem for its output; the
// task owns reading sources and writing destinations.
package transform

import (
	"context"
	"path"
	"strings"
)

// File is one source file handed to a Transformer.
type File struct {
	// Path is the slash separated path relative to the project root.
	Path string
	// Rel is Path relative to the base of the glob that selected it.
	Rel     string
	Content []byte
}

// Transformer converts source files of one asset category.
type Transformer interface {
	// Name identifies the transformer in logs and errors.
	Name() string
	// Accept reports whether the file at path produces an output.
	Accept(path string) bool
	// OutputPath maps a base relative source path to its output path.
	OutputPath(rel string) string
	// Transform returns the output content for f.
	Transform(ctx context.Context, f File) ([]byte, error)
}

// ReplaceExt swaps the extension of p for ext. ext includes the dot.
func ReplaceExt(p, ext string) string {
	return strings.TrimSuffix(p, path.Ext(p)) + ext
}

// Copy passes content through unchanged. It backs the pages, fonts, sounds
// and videos tasks.
type Copy struct {
	name string
}

// NewCopy creates a passthrough transformer.
func NewCopy(name string) *Copy {
	return &Copy{name: name}
}

func (c *Copy) Name() string { return c.name }

func (c *Copy) Accept(string) bool { return true }

func (c *Copy) OutputPath(rel string) string { return rel }

func (c *Copy) Transform(_ context.Context, f File) ([]byte, error) {
	return f.Content, nil
}
