package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/conneroisu/siteforge/internal/glob"
	"github.com/conneroisu/siteforge/internal/logging"
)

// TaskFunc re-runs a task.
type TaskFunc func(ctx context.Context) error

type binding struct {
	name     string
	patterns *glob.PatternSet
	run      TaskFunc
}

// Supervisor maps watched globs to tasks and re-runs exactly the tasks
// whose globs match a change.
type Supervisor struct {
	watcher *FileWatcher
	logger  logging.Logger

	mu       sync.RWMutex
	bindings []binding
}

// NewSupervisor dispatches the batches of w to the bound tasks.
func NewSupervisor(w *FileWatcher, logger logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Supervisor{watcher: w, logger: logger.WithComponent("watch")}
	w.AddHandler(func(ctx context.Context, events []ChangeEvent) error {
		s.Dispatch(ctx, events)
		return nil
	})
	return s
}

// Bind re-runs fn whenever a file matching patterns changes.
func (s *Supervisor) Bind(name string, patterns []string, fn TaskFunc) error {
	ps, err := glob.Compile(patterns)
	if err != nil {
		return fmt.Errorf("watch %s: %w", name, err)
	}
	if len(ps.Includes()) == 0 {
		return fmt.Errorf("watch %s: no patterns", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings = append(s.bindings, binding{name: name, patterns: ps, run: fn})
	return nil
}

// Dirs returns the directories the bound globs are rooted at.
func (s *Supervisor) Dirs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for _, b := range s.bindings {
		for _, p := range b.patterns.Includes() {
			dir := glob.Base(p)
			if dir == "" {
				dir = "."
			}
			if !seen[dir] {
				seen[dir] = true
				out = append(out, dir)
			}
		}
	}
	return out
}

// Dispatch runs, in bind order, every task with at least one matching
// change. Each task runs once per batch however many of its files changed.
// Task failures are logged; the names of the tasks that ran are returned.
func (s *Supervisor) Dispatch(ctx context.Context, events []ChangeEvent) []string {
	s.mu.RLock()
	bindings := append([]binding(nil), s.bindings...)
	s.mu.RUnlock()

	var ran []string
	for _, b := range bindings {
		trigger := ""
		for _, ev := range events {
			if b.patterns.Match(ev.Path) {
				trigger = ev.Path
				break
			}
		}
		if trigger == "" {
			continue
		}
		if ctx.Err() != nil {
			return ran
		}

		s.logger.Info(ctx, "'"+trigger+"' changed, running '"+b.name+"'")
		ran = append(ran, b.name)
		if err := b.run(ctx); err != nil {
			s.logger.Error(ctx, err, "'"+b.name+"' errored")
		}
	}
	return ran
}

// Run watches the bound directories until ctx is cancelled. Directories
// that do not exist yet are skipped.
func (s *Supervisor) Run(ctx context.Context) error {
	for _, dir := range s.Dirs() {
		err := s.watcher.AddRecursive(dir)
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug(ctx, "not watching missing directory", "dir", dir)
			continue
		}
		if err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	if err := s.watcher.Start(ctx); err != nil {
		return err
	}
	s.logger.Info(ctx, "Watching for changes", "dirs", len(s.Dirs()))
	<-ctx.Done()
	return s.watcher.Stop()
}
