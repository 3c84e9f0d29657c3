package pipeline

// Step is a node of a composition: a task reference, or a Series or
// Parallel group of steps.
type Step interface {
	// compile adds the step's tasks and inner edges to c and returns the
	// names that start the step (heads) and the names that end it (tails).
	compile(c *compiler) (heads, tails []string, err error)
}

type ref string

// Ref refers to a registered task, composite or alias by name.
func Ref(name string) Step { return ref(name) }

// Refs is shorthand for one Ref per name.
func Refs(names ...string) []Step {
	out := make([]Step, 0, len(names))
	for _, n := range names {
		out = append(out, ref(n))
	}
	return out
}

func (r ref) compile(c *compiler) ([]string, []string, error) {
	name := c.registry.resolve(string(r))
	if step, ok := c.registry.composite(name); ok {
		if c.expanding[name] {
			return nil, nil, cycleError([]string{name, name})
		}
		c.expanding[name] = true
		defer delete(c.expanding, name)
		return step.compile(c)
	}
	if _, ok := c.registry.Task(name); !ok {
		return nil, nil, unknownf("%q", string(r))
	}
	if c.seen[name] {
		return nil, nil, invalidf("task %q appears more than once", name)
	}
	c.seen[name] = true
	c.nodes = append(c.nodes, name)
	return []string{name}, []string{name}, nil
}

type series []Step

// Series runs steps one after the other: every task ending step i must
// succeed before any task starting step i+1 may run.
func Series(steps ...Step) Step { return series(steps) }

func (s series) compile(c *compiler) ([]string, []string, error) {
	var heads, tails []string
	for _, step := range s {
		h, t, err := step.compile(c)
		if err != nil {
			return nil, nil, err
		}
		if len(h) == 0 {
			continue
		}
		if heads == nil {
			heads = h
		}
		for _, from := range tails {
			for _, to := range h {
				c.edges = append(c.edges, Edge{From: from, To: to})
			}
		}
		tails = t
	}
	return heads, tails, nil
}

type parallel []Step

// Parallel runs steps concurrently with no ordering between them.
func Parallel(steps ...Step) Step { return parallel(steps) }

func (p parallel) compile(c *compiler) ([]string, []string, error) {
	var heads, tails []string
	for _, step := range p {
		h, t, err := step.compile(c)
		if err != nil {
			return nil, nil, err
		}
		heads = append(heads, h...)
		tails = append(tails, t...)
	}
	return heads, tails, nil
}

type compiler struct {
	registry  *Registry
	nodes     []string
	edges     []Edge
	seen      map[string]bool
	expanding map[string]bool
}

func compile(r *Registry, name string, step Step) (*TaskGraph, error) {
	c := &compiler{
		registry:  r,
		seen:      make(map[string]bool),
		expanding: map[string]bool{name: true},
	}
	if _, _, err := step.compile(c); err != nil {
		return nil, err
	}
	if len(c.nodes) == 0 {
		return nil, invalidf("composite %q has no tasks", name)
	}
	return NewTaskGraph(c.nodes, c.edges)
}
