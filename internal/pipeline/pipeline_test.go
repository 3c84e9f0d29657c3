package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context) error { return nil }

func registryWith(t *testing.T, names ...string) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, n := range names {
		require.NoError(t, r.Register(Task{Name: n, Run: noop}))
	}
	return r
}

func TestNewTaskGraphRejects(t *testing.T) {
	tests := []struct {
		name  string
		nodes []string
		edges []Edge
		kind  error
		msg   string
	}{
		{name: "no tasks", kind: ErrInvalidGraph},
		{name: "empty name", nodes: []string{""}, kind: ErrInvalidGraph},
		{name: "duplicate", nodes: []string{"a", "a"}, kind: ErrInvalidGraph, msg: `duplicate task name: "a"`},
		{name: "unknown from", nodes: []string{"a"}, edges: []Edge{{From: "x", To: "a"}}, kind: ErrInvalidGraph},
		{name: "unknown to", nodes: []string{"a"}, edges: []Edge{{From: "a", To: "x"}}, kind: ErrInvalidGraph},
		{name: "self loop", nodes: []string{"a"}, edges: []Edge{{From: "a", To: "a"}}, kind: ErrInvalidGraph},
		{
			name:  "duplicate edge",
			nodes: []string{"a", "b"},
			edges: []Edge{{From: "a", To: "b"}, {From: "a", To: "b"}},
			kind:  ErrInvalidGraph,
		},
		{
			name:  "cycle",
			nodes: []string{"a", "b"},
			edges: []Edge{{From: "a", To: "b"}, {From: "b", To: "a"}},
			kind:  ErrCycleFound,
			msg:   "cycle: a -> b -> a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewTaskGraph(tt.nodes, tt.edges)
			require.Error(t, err)
			assert.Nil(t, g)
			assert.ErrorIs(t, err, tt.kind)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestTopologicalOrderIsDeterministic(t *testing.T) {
	g, err := NewTaskGraph([]string{"c", "a", "b"}, []Edge{{From: "c", To: "b"}})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		assert.Equal(t, []string{"c", "a", "b"}, g.TopologicalOrder())
	}
	assert.Equal(t, []string{"c"}, g.Dependencies("b"))
	assert.Equal(t, []string{"b"}, g.Dependents("c"))
	assert.Nil(t, g.Dependencies("missing"))
	assert.True(t, g.Has("a"))
	assert.False(t, g.Has("z"))
}

func TestBuildGraphShape(t *testing.T) {
	r := registryWith(t, "clean", "styles", "views", "scripts", "serve")
	require.NoError(t, r.Compose("build", Series(
		Ref("clean"),
		Parallel(Refs("styles", "views", "scripts", "serve")...),
	)))
	require.NoError(t, r.Alias("default", "build"))

	g, err := r.Graph("default")
	require.NoError(t, err)

	assert.Equal(t, 5, g.Len())
	assert.Equal(t, "clean", g.TopologicalOrder()[0])
	assert.Empty(t, g.Dependencies("clean"))
	for _, n := range []string{"styles", "views", "scripts", "serve"} {
		assert.Equal(t, []string{"clean"}, g.Dependencies(n), n)
	}
	assert.Len(t, g.Edges(), 4)
}

func TestSeriesOfParallelGroups(t *testing.T) {
	r := registryWith(t, "a", "b", "c", "d")
	require.NoError(t, r.Compose("all", Series(
		Parallel(Refs("a", "b")...),
		Parallel(Refs("c", "d")...),
	)))

	g, err := r.Graph("all")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, g.Dependencies("c"))
	assert.Equal(t, []string{"a", "b"}, g.Dependencies("d"))
	assert.Len(t, g.Edges(), 4)
}

func TestWatchGraphHasNoEdges(t *testing.T) {
	r := registryWith(t, "serve", "watch-files", "reload")
	require.NoError(t, r.Compose("watch", Parallel(Refs("serve", "watch-files", "reload")...)))

	g, err := r.Graph("watch")
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())
	assert.Empty(t, g.Edges())
}

func TestNestedComposites(t *testing.T) {
	r := registryWith(t, "clean", "a", "b", "z")
	require.NoError(t, r.Compose("assets", Parallel(Refs("a", "b")...)))
	require.NoError(t, r.Compose("all", Series(Ref("clean"), Ref("assets"), Ref("z"))))

	g, err := r.Graph("all")
	require.NoError(t, err)
	assert.Equal(t, []string{"clean"}, g.Dependencies("a"))
	assert.Equal(t, []string{"a", "b"}, g.Dependencies("z"))
}

func TestEmptyStepsAreIgnoredInSeries(t *testing.T) {
	r := registryWith(t, "a", "b")
	require.NoError(t, r.Compose("all", Series(Ref("a"), Parallel(), Ref("b"))))

	g, err := r.Graph("all")
	require.NoError(t, err)
	assert.Equal(t, []Edge{{From: "a", To: "b"}}, g.Edges())
}

func TestGraphErrors(t *testing.T) {
	r := registryWith(t, "a")
	require.NoError(t, r.Compose("unknown", Series(Ref("a"), Ref("nope"))))
	require.NoError(t, r.Compose("twice", Parallel(Ref("a"), Ref("a"))))
	require.NoError(t, r.Compose("self", Series(Ref("a"), Ref("self"))))
	require.NoError(t, r.Compose("empty", Parallel()))

	_, err := r.Graph("unknown")
	assert.ErrorIs(t, err, ErrUnknownTask)

	_, err = r.Graph("twice")
	assert.ErrorIs(t, err, ErrInvalidGraph)

	_, err = r.Graph("self")
	assert.ErrorIs(t, err, ErrCycleFound)

	_, err = r.Graph("empty")
	assert.ErrorIs(t, err, ErrInvalidGraph)

	_, err = r.Graph("missing")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestRegistryNames(t *testing.T) {
	r := registryWith(t, "styles", "clean")
	require.NoError(t, r.Compose("build", Ref("clean")))
	require.NoError(t, r.Alias("default", "build"))

	assert.Equal(t, []string{"build", "clean", "default", "styles"}, r.Names())

	assert.Error(t, r.Register(Task{Name: "clean", Run: noop}))
	assert.Error(t, r.Compose("styles", Ref("clean")))
	assert.Error(t, r.Alias("build", "clean"))
	assert.Error(t, r.Register(Task{Name: "x"}))
	assert.Error(t, r.Register(Task{Run: noop}))
}

func TestExecutorCleanPrecedesWriters(t *testing.T) {
	var mu sync.Mutex
	var cleaned bool
	var sawClean []bool

	r := NewRegistry()
	require.NoError(t, r.Register(Task{Name: "clean", Run: func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		cleaned = true
		mu.Unlock()
		return nil
	}}))
	for _, n := range []string{"styles", "scripts", "images"} {
		require.NoError(t, r.Register(Task{Name: n, Run: func(context.Context) error {
			mu.Lock()
			sawClean = append(sawClean, cleaned)
			mu.Unlock()
			return nil
		}}))
	}
	require.NoError(t, r.Compose("build", Series(Ref("clean"), Parallel(Refs("styles", "scripts", "images")...))))

	report, err := NewExecutor(r, nil).RunTask(context.Background(), "build")
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true}, sawClean)
	for name, s := range report.States() {
		assert.Equal(t, StateSucceeded, s, name)
	}
}

func TestExecutorRunsSiblingsConcurrently(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)
	all := make(chan struct{})
	go func() {
		arrived.Wait()
		close(all)
	}()

	wait := func(context.Context) error {
		arrived.Done()
		select {
		case <-all:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("sibling never started")
		}
	}

	r := NewRegistry()
	require.NoError(t, r.Register(Task{Name: "serve", Run: wait}))
	require.NoError(t, r.Register(Task{Name: "watch-files", Run: wait}))
	require.NoError(t, r.Compose("watch", Parallel(Refs("serve", "watch-files")...)))

	_, err := NewExecutor(r, nil).RunTask(context.Background(), "watch")
	assert.NoError(t, err)
}

func TestExecutorFailureSkipsDependents(t *testing.T) {
	errA := errors.New("a failed")
	var ranB, ranC bool

	r := NewRegistry()
	require.NoError(t, r.Register(Task{Name: "a", Run: func(context.Context) error { return errA }}))
	require.NoError(t, r.Register(Task{Name: "b", Run: func(context.Context) error { ranB = true; return nil }}))
	require.NoError(t, r.Register(Task{Name: "c", Run: func(context.Context) error { ranC = true; return nil }}))
	require.NoError(t, r.Register(Task{Name: "d", Run: noop}))
	require.NoError(t, r.Compose("all", Parallel(
		Series(Ref("a"), Ref("b"), Ref("d")),
		Ref("c"),
	)))

	report, err := NewExecutor(r, nil).RunTask(context.Background(), "all")
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)

	var te *TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "a", te.Task)

	assert.False(t, ranB)
	assert.True(t, ranC)
	assert.Equal(t, StateFailed, report.State("a"))
	assert.Equal(t, StateSkipped, report.State("b"))
	assert.Equal(t, StateSkipped, report.State("d"))
	assert.Equal(t, StateSucceeded, report.State("c"))
}

func TestExecutorJoinsSiblingFailures(t *testing.T) {
	err1 := errors.New("styles broke")
	err2 := errors.New("scripts broke")

	r := NewRegistry()
	require.NoError(t, r.Register(Task{Name: "styles", Run: func(context.Context) error { return err1 }}))
	require.NoError(t, r.Register(Task{Name: "scripts", Run: func(context.Context) error { return err2 }}))
	require.NoError(t, r.Compose("assets", Parallel(Refs("styles", "scripts")...)))

	_, err := NewExecutor(r, nil).RunTask(context.Background(), "assets")
	assert.ErrorIs(t, err, err1)
	assert.ErrorIs(t, err, err2)
}

func TestExecutorRecoversPanics(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Task{Name: "boom", Run: func(context.Context) error { panic("boom") }}))

	report, err := NewExecutor(r, nil).RunTask(context.Background(), "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, StateFailed, report.State("boom"))
}

func TestExecutorCancelledContext(t *testing.T) {
	ran := false
	r := NewRegistry()
	require.NoError(t, r.Register(Task{Name: "a", Run: func(context.Context) error { ran = true; return nil }}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewExecutor(r, nil).RunTask(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
	assert.Equal(t, StateSkipped, report.State("a"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "succeeded", StateSucceeded.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "skipped", StateSkipped.String())
}
