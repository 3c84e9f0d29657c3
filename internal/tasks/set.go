package tasks

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/conneroisu/siteforge/internal/build"
	"github.com/conneroisu/siteforge/internal/config"
	"github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/logging"
	"github.com/conneroisu/siteforge/internal/reload"
	"github.com/conneroisu/siteforge/internal/transform"
)

// Deps are the collaborators shared by every task of a Set.
type Deps struct {
	Logger    logging.Logger
	Publisher reload.Publisher
	Collector *errors.ErrorCollector
	Metrics   *build.BuildMetrics
}

// Set holds the asset and cleanup tasks of a project.
type Set struct {
	assets  map[config.Category]*AssetTask
	images  *transform.Images
	Cleaner *Cleaner
}

// publishing lists the categories whose writes trigger a browser reload.
var publishing = map[config.Category]bool{
	config.Styles:  true,
	config.Scripts: true,
	config.Views:   true,
	config.Pages:   true,
}

var labels = map[config.Category]string{
	config.Views: "pug",
}

// NewSet builds every task from cfg. fsys is rooted at the project root.
func NewSet(cfg *config.Config, fsys afero.Fs, deps Deps) (*Set, error) {
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Collector == nil {
		deps.Collector = errors.NewErrorCollector()
	}
	if deps.Metrics == nil {
		deps.Metrics = build.NewBuildMetrics()
	}

	cache := build.NewOutputCache(
		build.NewBuildCache(cfg.Images.CacheBytes, 0),
		build.NewDiskStore(fsys, cfg.Build.CacheDir),
	)
	images := transform.NewImages(transform.ImagesOptions{Interlaced: cfg.Images.Interlaced}, cache)

	styles, err := transform.NewStyles(fsys, transform.StylesOptions{
		Browsers:     cfg.Styles.Browsers,
		Grid:         cfg.Styles.Grid,
		IncludePaths: cfg.Styles.IncludePaths,
	})
	if err != nil {
		return nil, fmt.Errorf("styles: %w", err)
	}
	scripts, err := transform.NewScripts(transform.ScriptsOptions{
		Target: cfg.Scripts.Target,
		Minify: cfg.Scripts.Minify,
	})
	if err != nil {
		return nil, fmt.Errorf("scripts: %w", err)
	}
	views := transform.NewViews(fsys, transform.ViewsOptions{
		Pretty:    cfg.Views.Pretty,
		Extension: cfg.Views.Extension,
		Data:      cfg.Views.Data,
	})

	transformers := map[config.Category]transform.Transformer{
		config.Styles:  styles,
		config.Scripts: scripts,
		config.Views:   views,
		config.Pages:   transform.NewCopy(string(config.Pages)),
		config.Images:  images,
		config.Fonts:   transform.NewCopy(string(config.Fonts)),
		config.Sounds:  transform.NewCopy(string(config.Sounds)),
		config.Videos:  transform.NewCopy(string(config.Videos)),
	}

	set := &Set{
		assets:  make(map[config.Category]*AssetTask),
		images:  images,
		Cleaner: NewCleaner(fsys, cfg.OutputRoot, cfg.BuildRoot, cfg.Cleanup.Placeholders, deps.Logger),
	}

	table := cfg.PathTable()
	for _, cat := range table.Categories() {
		spec, _ := table.Lookup(cat)
		tr, ok := transformers[cat]
		if !ok {
			continue
		}

		opts := []Option{
			WithLogger(deps.Logger),
			WithCollector(deps.Collector),
			WithMetrics(deps.Metrics),
		}
		if publishing[cat] && deps.Publisher != nil {
			opts = append(opts, WithPublisher(deps.Publisher))
		}
		if label, ok := labels[cat]; ok {
			opts = append(opts, WithLabel(label))
		}
		if cat == config.Images {
			opts = append(opts, WithSkipUnchanged())
		}

		task, err := NewAssetTask(string(cat), spec, tr, fsys, opts...)
		if err != nil {
			return nil, err
		}
		set.assets[cat] = task
	}
	return set, nil
}

// Asset returns the task of category c.
func (s *Set) Asset(c config.Category) (*AssetTask, bool) {
	t, ok := s.assets[c]
	return t, ok
}

// Assets returns the asset tasks in pipeline order.
func (s *Set) Assets() []*AssetTask {
	out := make([]*AssetTask, 0, len(s.assets))
	for _, c := range config.Categories() {
		if t, ok := s.assets[c]; ok {
			out = append(out, t)
		}
	}
	return out
}

// ImageStats returns the image optimizer counters.
func (s *Set) ImageStats() transform.ImageStats {
	return s.images.Stats()
}
