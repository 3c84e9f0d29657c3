// Package pipeline composes named tasks into dependency graphs and runs
// them concurrently.
package pipeline

import (
	"container/heap"
	"slices"
)

// Edge declares that To may only start after From succeeded.
type Edge struct {
	From string
	To   string
}

// TaskGraph is an immutable, validated DAG of task names.
//
// It is safe for concurrent read access.
type TaskGraph struct {
	names []string // declaration order
	index map[string]int

	outgoing [][]int
	incoming [][]int
	indeg    []int
}

// NewTaskGraph builds and validates a TaskGraph. Node order is kept as
// declared and is used to break ties in the topological order.
//
// Validation rejects empty or duplicate names, edges referencing unknown
// nodes, duplicate edges, self-loops and cycles.
func NewTaskGraph(nodes []string, edges []Edge) (*TaskGraph, error) {
	if len(nodes) == 0 {
		return nil, invalidf("no tasks")
	}

	g := &TaskGraph{
		names:    make([]string, 0, len(nodes)),
		index:    make(map[string]int, len(nodes)),
		outgoing: make([][]int, len(nodes)),
		incoming: make([][]int, len(nodes)),
		indeg:    make([]int, len(nodes)),
	}
	for _, n := range nodes {
		if n == "" {
			return nil, invalidf("task name is required")
		}
		if _, exists := g.index[n]; exists {
			return nil, invalidf("duplicate task name: %q", n)
		}
		g.index[n] = len(g.names)
		g.names = append(g.names, n)
	}

	seen := make(map[[2]int]struct{}, len(edges))
	for _, e := range edges {
		from, okFrom := g.index[e.From]
		to, okTo := g.index[e.To]
		if !okFrom {
			return nil, invalidf("edge references unknown task (from): %q", e.From)
		}
		if !okTo {
			return nil, invalidf("edge references unknown task (to): %q", e.To)
		}
		if from == to {
			return nil, invalidf("self-loop: %q -> %q", e.From, e.To)
		}
		pair := [2]int{from, to}
		if _, exists := seen[pair]; exists {
			return nil, invalidf("duplicate edge: %q -> %q", e.From, e.To)
		}
		seen[pair] = struct{}{}

		g.outgoing[from] = append(g.outgoing[from], to)
		g.incoming[to] = append(g.incoming[to], from)
		g.indeg[to]++
	}
	for i := range g.names {
		slices.Sort(g.outgoing[i])
		slices.Sort(g.incoming[i])
	}

	if order := g.topoOrderIndices(); len(order) != len(g.names) {
		return nil, cycleError(g.findCycle())
	}
	return g, nil
}

// Len returns the number of nodes.
func (g *TaskGraph) Len() int { return len(g.names) }

// Has reports whether name is a node of the graph.
func (g *TaskGraph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Nodes returns the node names in declaration order.
func (g *TaskGraph) Nodes() []string {
	return slices.Clone(g.names)
}

// Edges returns every edge, ordered by source then target declaration order.
func (g *TaskGraph) Edges() []Edge {
	var out []Edge
	for from, tos := range g.outgoing {
		for _, to := range tos {
			out = append(out, Edge{From: g.names[from], To: g.names[to]})
		}
	}
	return out
}

// Dependencies returns the direct prerequisites of name.
func (g *TaskGraph) Dependencies(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.namesOf(g.incoming[i])
}

// Dependents returns the tasks that directly wait on name.
func (g *TaskGraph) Dependents(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.namesOf(g.outgoing[i])
}

// TopologicalOrder returns a deterministic topological ordering of the
// node names. The graph is acyclic by construction so this cannot fail.
func (g *TaskGraph) TopologicalOrder() []string {
	return g.namesOf(g.topoOrderIndices())
}

func (g *TaskGraph) namesOf(idx []int) []string {
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, g.names[i])
	}
	return out
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrderIndices runs Kahn's algorithm with a min-heap ready queue. The
// result is shorter than the node count when the graph has a cycle.
func (g *TaskGraph) topoOrderIndices() []int {
	indeg := slices.Clone(g.indeg)

	ready := &intMinHeap{}
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

// findCycle returns one cycle as a closed path of names, e.g. a -> b -> a.
func (g *TaskGraph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(g.names))
	var stack []int
	var cycle []int

	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		stack = append(stack, u)
		for _, v := range g.outgoing[u] {
			switch color[v] {
			case white:
				if dfs(v) {
					return true
				}
			case gray:
				start := slices.Index(stack, v)
				cycle = append(slices.Clone(stack[start:]), v)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
		return false
	}

	for i := range g.names {
		if color[i] == white && dfs(i) {
			break
		}
	}
	return g.namesOf(cycle)
}
