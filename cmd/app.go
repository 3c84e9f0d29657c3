package cmd

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/conneroisu/siteforge/internal/build"
	"github.com/conneroisu/siteforge/internal/config"
	sferrors "github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/logging"
	"github.com/conneroisu/siteforge/internal/pipeline"
	"github.com/conneroisu/siteforge/internal/reload"
	"github.com/conneroisu/siteforge/internal/server"
	"github.com/conneroisu/siteforge/internal/tasks"
	"github.com/conneroisu/siteforge/internal/watcher"
)

// Task names of the pipeline besides the asset categories.
const (
	taskClean      = "clean"
	taskRmEmpty    = "rmEmpty"
	taskServe      = "serve"
	taskWatchFiles = "watch-files"
	taskReload     = "reload"
	taskBuild      = "build"
	taskWatch      = "watch"
	taskDefault    = "default"
)

// buildTasks are the writers run in parallel after clean.
var buildTasks = []string{"styles", "views", "scripts", "pages", "images", "fonts", "sounds", "videos"}

// watchBindings are the categories re-run by watch-files.
var watchBindings = []config.Category{config.Views, config.Styles, config.Scripts, config.Pages}

type appOptions struct {
	// NoServe drops the page server from the build composite.
	NoServe bool
}

// app wires the tasks of one project into a pipeline.
type app struct {
	cfg       *config.Config
	fs        afero.Fs
	logger    logging.Logger
	relay     *reload.Relay
	collector *sferrors.ErrorCollector
	metrics   *build.BuildMetrics
	set       *tasks.Set
	registry  *pipeline.Registry
	executor  *pipeline.Executor

	mu          sync.Mutex
	broadcaster *reload.Broadcaster
	ready       chan struct{}
	readyOnce   sync.Once
	serveDone   chan struct{}
	serveOnce   sync.Once
}

func newApp(cfg *config.Config, logger logging.Logger, opts appOptions) (*app, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	a := &app{
		cfg:       cfg,
		fs:        afero.NewBasePathFs(afero.NewOsFs(), cfg.Root),
		logger:    logger,
		relay:     &reload.Relay{},
		collector: sferrors.NewErrorCollector(),
		metrics:   build.NewBuildMetrics(),
		registry:  pipeline.NewRegistry(),
		ready:     make(chan struct{}),
		serveDone: make(chan struct{}),
	}

	set, err := tasks.NewSet(cfg, a.fs, tasks.Deps{
		Logger:    logger,
		Publisher: a.relay,
		Collector: a.collector,
		Metrics:   a.metrics,
	})
	if err != nil {
		return nil, err
	}
	a.set = set

	if err := a.register(opts); err != nil {
		return nil, err
	}
	a.executor = pipeline.NewExecutor(a.registry, logger)
	return a, nil
}

func (a *app) register(opts appOptions) error {
	list := []pipeline.Task{
		{Name: taskClean, Description: "Delete the output root", Run: a.set.Cleaner.Clean},
		{Name: taskRmEmpty, Description: "Remove the template placeholder files", Run: a.set.Cleaner.RemovePlaceholders},
		{Name: taskServe, Description: "Serve the output root with live reload", Run: a.serve},
		{Name: taskWatchFiles, Description: "Re-run tasks when their sources change", Run: a.watchFiles},
		{Name: taskReload, Description: "Reload connected browsers", Run: a.reloadBrowsers},
	}
	for _, t := range a.set.Assets() {
		list = append(list, pipeline.Task{
			Name:        t.Name(),
			Description: "Build " + t.Name() + " into " + t.Spec().Dest,
			Run:         t.Run,
		})
	}
	for _, t := range list {
		if err := a.registry.Register(t); err != nil {
			return err
		}
	}

	writers := pipeline.Refs(buildTasks...)
	if !opts.NoServe {
		writers = append(writers, pipeline.Ref(taskServe))
	}
	if err := a.registry.Compose(taskBuild, pipeline.Series(
		pipeline.Ref(taskClean),
		pipeline.Parallel(writers...),
	)); err != nil {
		return err
	}
	if err := a.registry.Compose(taskWatch, pipeline.Parallel(
		pipeline.Refs(taskServe, taskWatchFiles, taskReload)...,
	)); err != nil {
		return err
	}
	return a.registry.Alias(taskDefault, taskBuild)
}

// run executes a task or composite by name.
func (a *app) run(ctx context.Context, name string) error {
	_, err := a.executor.RunTask(ctx, name)
	return err
}

// serve runs the page server until ctx is cancelled. Once it listens, the
// reload broadcaster is started in front of it.
func (a *app) serve(ctx context.Context) error {
	defer a.serveOnce.Do(func() { close(a.serveDone) })

	ps, err := server.New(server.OptionsFrom(a.cfg), a.fs, a.logger)
	if err != nil {
		return err
	}
	err = ps.Run(ctx, a.startBroadcaster)
	a.stopBroadcaster()
	return err
}

func (a *app) startBroadcaster(ctx context.Context, target *url.URL) error {
	if !a.cfg.Reload.Enabled {
		return nil
	}
	b, err := reload.NewBroadcaster(reload.Options{
		Host:       a.cfg.Reload.Host,
		Port:       a.cfg.Reload.Port,
		Target:     target,
		OutputRoot: a.cfg.OutputRoot,
		Collector:  a.collector,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := b.Start(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	a.broadcaster = b
	a.mu.Unlock()
	a.relay.Attach(b)
	a.readyOnce.Do(func() { close(a.ready) })
	return nil
}

func (a *app) stopBroadcaster() {
	a.mu.Lock()
	b := a.broadcaster
	a.broadcaster = nil
	a.mu.Unlock()
	if b == nil {
		return
	}
	a.relay.Attach(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, err, "reload server shutdown")
	}
}

// reloadBrowsers waits for the broadcaster and asks every connected
// browser to reload. Without a broadcaster it does nothing.
func (a *app) reloadBrowsers(ctx context.Context) error {
	if !a.cfg.Reload.Enabled {
		return nil
	}
	select {
	case <-a.ready:
	case <-a.serveDone:
		return nil
	case <-ctx.Done():
		return nil
	}
	a.mu.Lock()
	b := a.broadcaster
	a.mu.Unlock()
	if b == nil {
		return nil
	}
	return b.Reload(ctx)
}

// watchFiles re-runs the asset tasks whose sources change until ctx is
// cancelled.
func (a *app) watchFiles(ctx context.Context) error {
	fw, err := watcher.NewFileWatcher(a.cfg.Root, a.cfg.Build.WatchDelay, a.logger)
	if err != nil {
		return err
	}
	fw.AddFilter(watcher.NoDirFilter(a.cfg.OutputRoot))
	fw.AddFilter(watcher.NoDirFilter(a.cfg.Build.CacheDir))

	sup := watcher.NewSupervisor(fw, a.logger)
	if err := a.bindWatches(sup); err != nil {
		return err
	}
	return sup.Run(ctx)
}

func (a *app) bindWatches(sup *watcher.Supervisor) error {
	for _, cat := range watchBindings {
		task, ok := a.set.Asset(cat)
		if !ok {
			continue
		}
		name := task.Name()
		if err := sup.Bind(name, task.Spec().WatchPatterns(), func(ctx context.Context) error {
			return a.run(ctx, name)
		}); err != nil {
			return fmt.Errorf("binding %s: %w", name, err)
		}
	}
	return nil
}

// report logs the per-task counters and the files that failed to build.
func (a *app) report(ctx context.Context) {
	for _, name := range a.metrics.Tasks() {
		m := a.metrics.Snapshot(name)
		a.logger.Debug(ctx, "task metrics",
			"task", name,
			"runs", m.Runs,
			"written", m.FilesWritten,
			"skipped", m.FilesSkipped,
			"failed", m.FilesFailed,
			"cache_hits", m.CacheHits,
			"avg", m.AverageDuration().String(),
		)
	}
	errs := a.collector.Errors()
	for _, e := range errs {
		a.logger.Warn(ctx, e, "unresolved error", "task", e.Task, "file", e.File)
	}
	if len(errs) > 0 {
		a.logger.Warn(ctx, nil, fmt.Sprintf("%d file(s) failed to build", len(errs)))
	}
}
