// Package watcher observes the source tree and re-runs the tasks whose
// globs match changed files.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/siteforge/internal/logging"
)

// FileWatcher watches directories below a root and delivers debounced
// batches of changes. Paths are reported relative to the root, slash
// separated, so they can be matched against task globs.
type FileWatcher struct {
	root      string
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	filters   []FileFilter
	handlers  []ChangeHandler
	logger    logging.Logger
	mutex     sync.RWMutex
	stopOnce  sync.Once
	stopErr   error
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a file should be watched
type FileFilter func(path string) bool

// ChangeHandler handles a batch of file changes
type ChangeHandler func(ctx context.Context, events []ChangeEvent) error

// Debouncer groups rapid file changes together
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending []ChangeEvent
	mutex   sync.Mutex
}

func newDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 10),
		pending: make([]ChangeEvent, 0),
	}
}

// NewFileWatcher creates a watcher for the tree below root.
func NewFileWatcher(root string, debounceDelay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving watch root: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &FileWatcher{
		root:      absRoot,
		watcher:   w,
		debouncer: newDebouncer(debounceDelay),
		filters:   []FileFilter{NoGitFilter, NoEditorTempFilter},
		logger:    logger.WithComponent("watch"),
	}, nil
}

// Root returns the absolute watch root.
func (fw *FileWatcher) Root() string { return fw.root }

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddPath watches a single directory, given relative to the root.
func (fw *FileWatcher) AddPath(rel string) error {
	abs, err := fw.validatePath(rel)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	return fw.watcher.Add(abs)
}

// AddRecursive watches a directory, given relative to the root, and all of
// its subdirectories.
func (fw *FileWatcher) AddRecursive(rel string) error {
	abs, err := fw.validatePath(rel)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}
	return fw.addTree(abs)
}

func (fw *FileWatcher) addTree(abs string) error {
	return filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if !fw.accept(fw.rel(p) + "/") {
			return filepath.SkipDir
		}
		return fw.watcher.Add(p)
	})
}

// validatePath resolves rel against the root and rejects anything that
// escapes it.
func (fw *FileWatcher) validatePath(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the watch root", rel)
	}
	return filepath.Join(fw.root, clean), nil
}

func (fw *FileWatcher) rel(abs string) string {
	r, err := filepath.Rel(fw.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(r)
}

func (fw *FileWatcher) accept(rel string) bool {
	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()
	for _, filter := range filters {
		if !filter(rel) {
			return false
		}
	}
	return true
}

// Start starts the file watcher
func (fw *FileWatcher) Start(ctx context.Context) error {
	go fw.debouncer.start(ctx)
	go fw.processEvents(ctx)
	go fw.watchLoop(ctx)
	return nil
}

// Stop stops the file watcher and cleans up resources. It is safe to call
// more than once.
func (fw *FileWatcher) Stop() error {
	fw.stopOnce.Do(func() {
		fw.debouncer.stop()
		fw.stopErr = fw.watcher.Close()
	})
	return fw.stopErr
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "file watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	rel := fw.rel(event.Name)
	if !fw.accept(rel) {
		return
	}

	var modTime time.Time
	var size int64
	info, err := os.Stat(event.Name)
	if err == nil {
		modTime = info.ModTime()
		size = info.Size()
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventTypeCreated
		if err == nil && info.IsDir() {
			// New directories are not watched by fsnotify on their own.
			if err := fw.addTree(event.Name); err != nil {
				fw.logger.Warn(context.Background(), err, "failed to watch new directory", "path", rel)
			}
			return
		}
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventTypeRenamed
	case event.Op&fsnotify.Chmod == fsnotify.Chmod:
		return
	default:
		eventType = EventTypeModified
	}
	if err == nil && info.IsDir() {
		return
	}

	changeEvent := ChangeEvent{
		Type:    eventType,
		Path:    rel,
		ModTime: modTime,
		Size:    size,
	}

	select {
	case fw.debouncer.events <- changeEvent:
	default:
		fw.logger.Debug(context.Background(), "dropping change event, queue full", "path", rel)
	}
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-fw.debouncer.output:
			fw.mutex.RLock()
			handlers := fw.handlers
			fw.mutex.RUnlock()

			for _, handler := range handlers {
				if err := handler(ctx, events); err != nil {
					fw.logger.Error(ctx, err, "file watcher handler error")
				}
			}
		}
	}
}

func (d *Debouncer) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.stop()
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *Debouncer) stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

func (d *Debouncer) addEvent(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

// flush emits the pending events, one per path (the latest wins), sorted
// by path.
func (d *Debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.pending) == 0 {
		return
	}

	eventMap := make(map[string]ChangeEvent, len(d.pending))
	for _, event := range d.pending {
		eventMap[event.Path] = event
	}
	events := make([]ChangeEvent, 0, len(eventMap))
	for _, event := range eventMap {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	select {
	case d.output <- events:
	default:
	}

	d.pending = d.pending[:0]
}

// NoGitFilter skips version control metadata.
func NoGitFilter(path string) bool {
	return !strings.HasPrefix(path, ".git/") && !strings.Contains(path, "/.git/") && path != ".git"
}

// NoEditorTempFilter skips swap and backup files editors write next to the
// file being edited.
func NoEditorTempFilter(path string) bool {
	base := path
	if i := strings.LastIndex(strings.TrimSuffix(path, "/"), "/"); i >= 0 {
		base = path[i+1:]
	}
	switch {
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasPrefix(base, ".#"),
		base == "4913":
		return false
	}
	return true
}

// NoDirFilter skips every path below dir, e.g. the output root.
func NoDirFilter(dir string) FileFilter {
	dir = strings.Trim(filepath.ToSlash(dir), "/")
	return func(path string) bool {
		return dir == "" || (path != dir && path != dir+"/" && !strings.HasPrefix(path, dir+"/"))
	}
}
