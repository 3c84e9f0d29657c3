// Package tasks implements the named units of work of the pipeline: one
// asset task per category plus the cleanup tasks.
package tasks

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/siteforge/internal/build"
	"github.com/conneroisu/siteforge/internal/config"
	"github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/glob"
	"github.com/conneroisu/siteforge/internal/logging"
	"github.com/conneroisu/siteforge/internal/reload"
	"github.com/conneroisu/siteforge/internal/transform"
)

// Result lists what the last run of a task did with each source.
type Result struct {
	// Written holds destination paths that were (re)written.
	Written []string
	// Skipped holds sources that produced no write: partials and outputs
	// whose content was already up to date.
	Skipped []string
	// Failed holds sources whose transform failed.
	Failed []string
}

// AssetTask streams the sources of one category through a transformer into
// the category's destination directory. A source that fails to transform is
// reported and skipped; the rest of the run continues.
type AssetTask struct {
	name        string
	label       string
	spec        config.PathSpec
	patterns    *glob.PatternSet
	transformer transform.Transformer
	fs          afero.Fs

	publisher     reload.Publisher
	logger        logging.Logger
	collector     *errors.ErrorCollector
	metrics       *build.BuildMetrics
	skipUnchanged bool

	mu   sync.Mutex
	last Result
}

// Option configures an AssetTask.
type Option func(*AssetTask)

// WithPublisher streams an event per written file to p.
func WithPublisher(p reload.Publisher) Option {
	return func(t *AssetTask) { t.publisher = p }
}

// WithLogger sets the task logger.
func WithLogger(l logging.Logger) Option {
	return func(t *AssetTask) { t.logger = l }
}

// WithCollector records transform errors in c.
func WithCollector(c *errors.ErrorCollector) Option {
	return func(t *AssetTask) { t.collector = c }
}

// WithMetrics records run statistics in m.
func WithMetrics(m *build.BuildMetrics) Option {
	return func(t *AssetTask) { t.metrics = m }
}

// WithLabel sets the word error messages are prefixed with, e.g. "pug" for
// "Pug Task Error". It defaults to the task name.
func WithLabel(label string) Option {
	return func(t *AssetTask) { t.label = label }
}

// WithSkipUnchanged leaves destination files alone when their content
// already matches the output.
func WithSkipUnchanged() Option {
	return func(t *AssetTask) { t.skipUnchanged = true }
}

// NewAssetTask creates a task for spec. The source globs are compiled once;
// they are resolved against fsys on every run.
func NewAssetTask(name string, spec config.PathSpec, tr transform.Transformer, fsys afero.Fs, opts ...Option) (*AssetTask, error) {
	patterns, err := glob.Compile(spec.Sources)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", name, err)
	}
	t := &AssetTask{
		name:        name,
		label:       name,
		spec:        spec,
		patterns:    patterns,
		transformer: tr,
		fs:          fsys,
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.WithComponent(name)
	return t, nil
}

// Name returns the task name.
func (t *AssetTask) Name() string { return t.name }

// Spec returns the path record the task was built from.
func (t *AssetTask) Spec() config.PathSpec { return t.spec }

// LastResult returns the outcome of the most recent run.
func (t *AssetTask) LastResult() Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Result{
		Written: append([]string(nil), t.last.Written...),
		Skipped: append([]string(nil), t.last.Skipped...),
		Failed:  append([]string(nil), t.last.Failed...),
	}
}

type cacheReporter interface {
	CacheHits() int64
}

// Run processes every source currently matching the task globs. It returns
// an error only when the filesystem fails; transform failures are reported
// through the logger, the collector and the publisher.
func (t *AssetTask) Run(ctx context.Context) error {
	t.logger.Info(ctx, "Starting '"+t.name+"'")
	start := time.Now()
	var hitsBefore int64
	if cr, ok := t.transformer.(cacheReporter); ok {
		hitsBefore = cr.CacheHits()
	}

	res, err := t.run(ctx)

	t.mu.Lock()
	t.last = res
	t.mu.Unlock()

	if t.metrics != nil {
		stats := build.RunStats{
			Written:  len(res.Written),
			Skipped:  len(res.Skipped),
			Failed:   len(res.Failed),
			Duration: time.Since(start),
			Err:      err,
		}
		if cr, ok := t.transformer.(cacheReporter); ok {
			stats.CacheHits = int(cr.CacheHits() - hitsBefore)
		}
		t.metrics.Record(t.name, stats)
	}

	elapsed := time.Since(start).Round(time.Millisecond).String()
	if err != nil {
		t.logger.Error(ctx, err, "'"+t.name+"' errored after "+elapsed)
		return err
	}
	t.logger.Info(ctx, "Finished '"+t.name+"' after "+elapsed,
		"written", len(res.Written), "skipped", len(res.Skipped), "failed", len(res.Failed))
	return nil
}

func (t *AssetTask) run(ctx context.Context) (Result, error) {
	var res Result

	matches, err := t.patterns.Resolve(t.fs)
	if err != nil {
		return res, fmt.Errorf("%s: %w", t.name, err)
	}

	hadErrors := t.collector != nil && len(t.collector.ByTask()[t.name]) > 0
	if t.collector != nil {
		t.collector.Clear(t.name)
	}

	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !t.transformer.Accept(m.Path) {
			res.Skipped = append(res.Skipped, m.Path)
			continue
		}

		content, err := afero.ReadFile(t.fs, m.Path)
		if err != nil {
			return res, fmt.Errorf("%s: failed to read %s: %w", t.name, m.Path, err)
		}

		out, err := t.transformer.Transform(ctx, transform.File{Path: m.Path, Rel: m.Rel, Content: content})
		if err != nil {
			t.fail(ctx, m.Path, err)
			res.Failed = append(res.Failed, m.Path)
			continue
		}

		dest := path.Join(t.spec.Dest, t.transformer.OutputPath(m.Rel))
		if t.skipUnchanged && t.unchanged(dest, out) {
			res.Skipped = append(res.Skipped, m.Path)
			continue
		}
		if err := t.fs.MkdirAll(path.Dir(dest), 0o755); err != nil {
			return res, fmt.Errorf("%s: failed to create %s: %w", t.name, path.Dir(dest), err)
		}
		if err := afero.WriteFile(t.fs, dest, out, 0o644); err != nil {
			return res, fmt.Errorf("%s: failed to write %s: %w", t.name, dest, err)
		}
		res.Written = append(res.Written, dest)
		t.logger.Debug(ctx, "wrote "+dest, "source", m.Path)

		if t.publisher != nil {
			t.publisher.Publish(ctx, reload.ChangeEvent(t.name, dest))
		}
	}

	if hadErrors && len(res.Failed) == 0 && t.publisher != nil {
		t.publisher.Publish(ctx, reload.ResolvedEvent(t.name))
	}
	return res, nil
}

// fail reports a per-file transform failure.
func (t *AssetTask) fail(ctx context.Context, file string, err error) {
	var te *errors.TransformError
	if !errors.As(err, &te) {
		te = errors.NewTransformError(t.name, file, err)
	}
	if te.File == "" {
		te.File = file
	}
	if te.Line == 0 {
		if line, col, ok := errors.Locate(te.Message); ok {
			te.At(line, col)
		}
	}

	t.logger.Error(ctx, te, errorTitle(t.label), "file", te.File)
	if t.collector != nil {
		t.collector.Add(te)
	}
	if t.publisher != nil {
		t.publisher.Publish(ctx, reload.NotifyEvent(t.name, te.File, te.Error()))
	}
}

func (t *AssetTask) unchanged(dest string, out []byte) bool {
	existing, err := afero.ReadFile(t.fs, dest)
	return err == nil && bytes.Equal(existing, out)
}

// errorTitle renders the log line of a failed file, e.g. "Styles Task Error".
func errorTitle(label string) string {
	return cases.Title(language.English).String(label) + " Task Error"
}
