package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Func is the body of a task.
type Func func(ctx context.Context) error

// Task is a named, independently invocable unit of work.
type Task struct {
	Name        string
	Description string
	Run         Func
}

// Registry holds the tasks, composites and aliases of a pipeline.
type Registry struct {
	mu         sync.RWMutex
	tasks      map[string]Task
	composites map[string]Step
	aliases    map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks:      make(map[string]Task),
		composites: make(map[string]Step),
		aliases:    make(map[string]string),
	}
}

// Register adds a task.
func (r *Registry) Register(t Task) error {
	if t.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if t.Run == nil {
		return fmt.Errorf("task %q has no body", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.taken(t.Name) {
		return fmt.Errorf("name %q already registered", t.Name)
	}
	r.tasks[t.Name] = t
	return nil
}

// Compose registers a composite task built from step. References are
// resolved when the graph is requested, so composites may be declared
// before the tasks they use.
func (r *Registry) Compose(name string, step Step) error {
	if name == "" {
		return fmt.Errorf("composite name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.taken(name) {
		return fmt.Errorf("name %q already registered", name)
	}
	r.composites[name] = step
	return nil
}

// Alias makes alias resolve to target.
func (r *Registry) Alias(alias, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.taken(alias) {
		return fmt.Errorf("name %q already registered", alias)
	}
	r.aliases[alias] = target
	return nil
}

func (r *Registry) taken(name string) bool {
	_, t := r.tasks[name]
	_, c := r.composites[name]
	_, a := r.aliases[name]
	return t || c || a
}

// Task returns the plain task registered as name.
func (r *Registry) Task(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	return t, ok
}

// Names returns every invocable name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tasks)+len(r.composites)+len(r.aliases))
	for n := range r.tasks {
		out = append(out, n)
	}
	for n := range r.composites {
		out = append(out, n)
	}
	for n := range r.aliases {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

func (r *Registry) composite(name string) (Step, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.composites[name]
	return s, ok
}

// resolve follows aliases. Alias loops resolve to the last name visited.
func (r *Registry) resolve(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	visited := map[string]bool{}
	for !visited[name] {
		visited[name] = true
		target, ok := r.aliases[name]
		if !ok {
			break
		}
		name = target
	}
	return name
}

// Graph compiles name into a task graph. A plain task yields a single node
// graph.
func (r *Registry) Graph(name string) (*TaskGraph, error) {
	resolved := r.resolve(name)
	if step, ok := r.composite(resolved); ok {
		g, err := compile(r, resolved, step)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return g, nil
	}
	if _, ok := r.Task(resolved); ok {
		return NewTaskGraph([]string{resolved}, nil)
	}
	return nil, unknownf("%q", name)
}
