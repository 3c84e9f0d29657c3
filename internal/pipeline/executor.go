package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/conneroisu/siteforge/internal/logging"
)

// State is the outcome of one node of a run.
type State int

const (
	StatePending State = iota
	StateSucceeded
	StateFailed
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	}
	return "pending"
}

// Report is the per-task outcome of a run.
type Report struct {
	mu     sync.Mutex
	states map[string]State
}

func newReport(g *TaskGraph) *Report {
	r := &Report{states: make(map[string]State, g.Len())}
	for _, n := range g.names {
		r.states[n] = StatePending
	}
	return r
}

func (r *Report) set(name string, s State) {
	r.mu.Lock()
	r.states[name] = s
	r.mu.Unlock()
}

// State returns the outcome of name.
func (r *Report) State(name string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[name]
}

// States returns a copy of every outcome.
func (r *Report) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.states))
	for k, v := range r.states {
		out[k] = v
	}
	return out
}

// Executor runs task graphs against a registry.
type Executor struct {
	registry *Registry
	logger   logging.Logger
}

// NewExecutor creates an executor. logger may be nil.
func NewExecutor(r *Registry, logger logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Executor{registry: r, logger: logger.WithComponent("pipeline")}
}

// RunTask compiles name and runs it.
func (e *Executor) RunTask(ctx context.Context, name string) (*Report, error) {
	g, err := e.registry.Graph(name)
	if err != nil {
		return nil, err
	}
	op := logging.StartOperation(e.logger, name)
	e.logger.Info(ctx, "Starting '"+name+"'")
	report, err := e.Run(ctx, g)
	if err != nil {
		op.EndWithError(ctx, err)
		return report, err
	}
	op.End(ctx)
	return report, nil
}

// Run starts every node as soon as all of its dependencies succeeded.
// Independent nodes run concurrently. A failed node marks its transitive
// dependents as skipped while unrelated nodes continue. The returned error
// joins every task failure, in topological order.
func (e *Executor) Run(ctx context.Context, g *TaskGraph) (*Report, error) {
	report := newReport(g)
	order := g.TopologicalOrder()

	done := make(map[string]chan struct{}, len(order))
	for _, n := range order {
		done[n] = make(chan struct{})
	}
	failures := make(map[string]error, len(order))
	var mu sync.Mutex

	var wg conc.WaitGroup
	for _, name := range order {
		wg.Go(func() {
			defer close(done[name])

			deps := g.Dependencies(name)
			for _, dep := range deps {
				<-done[dep]
			}
			for _, dep := range deps {
				if report.State(dep) != StateSucceeded {
					report.set(name, StateSkipped)
					e.logger.Debug(ctx, "skipping '"+name+"'", "after", dep)
					return
				}
			}
			if ctx.Err() != nil {
				report.set(name, StateSkipped)
				return
			}

			if err := e.runOne(ctx, name); err != nil {
				report.set(name, StateFailed)
				mu.Lock()
				failures[name] = err
				mu.Unlock()
				return
			}
			report.set(name, StateSucceeded)
		})
	}
	wg.Wait()

	var errs []error
	for _, n := range order {
		if err, ok := failures[n]; ok {
			errs = append(errs, &TaskError{Task: n, Err: err})
		}
	}
	if err := ctx.Err(); err != nil && len(errs) == 0 {
		for _, n := range order {
			if report.State(n) == StateSkipped {
				errs = append(errs, err)
				break
			}
		}
	}
	return report, errors.Join(errs...)
}

func (e *Executor) runOne(ctx context.Context, name string) (err error) {
	task, ok := e.registry.Task(name)
	if !ok {
		return unknownf("%q", name)
	}
	var pc panics.Catcher
	pc.Try(func() { err = task.Run(ctx) })
	if r := pc.Recovered(); r != nil {
		return fmt.Errorf("panic: %w", r.AsError())
	}
	return err
}
