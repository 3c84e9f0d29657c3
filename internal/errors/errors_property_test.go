//go:build property

package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var taskNames = []string{"styles", "scripts", "views", "images"}

// TestErrorCollectorProperties validates collection and clearing across
// concurrently reporting tasks.
func TestErrorCollectorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("concurrent adds are never lost", prop.ForAll(
		func(goroutines, perGoroutine int) bool {
			collector := NewErrorCollector()
			cause := stderrors.New("boom")

			var wg sync.WaitGroup
			for g := range goroutines {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := range perGoroutine {
						task := taskNames[(g+i)%len(taskNames)]
						collector.Add(NewTransformError(task, fmt.Sprintf("f%d_%d", g, i), cause))
					}
				}()
			}
			wg.Wait()

			return len(collector.Errors()) == goroutines*perGoroutine
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 50),
	))

	properties.Property("Clear removes exactly the errors of one task", prop.ForAll(
		func(picks []int, clearIdx int) bool {
			collector := NewErrorCollector()
			cause := stderrors.New("boom")
			counts := map[string]int{}
			for i, p := range picks {
				task := taskNames[p]
				counts[task]++
				collector.Add(NewTransformError(task, fmt.Sprintf("f%d", i), cause))
			}

			cleared := taskNames[clearIdx]
			collector.Clear(cleared)

			byTask := collector.ByTask()
			if _, ok := byTask[cleared]; ok {
				return false
			}
			for task, n := range counts {
				if task != cleared && len(byTask[task]) != n {
					return false
				}
			}
			return len(collector.Errors()) == len(picks)-counts[cleared]
		},
		gen.SliceOf(gen.IntRange(0, len(taskNames)-1)),
		gen.IntRange(0, len(taskNames)-1),
	))

	properties.Property("ByTask groups are sorted by file", prop.ForAll(
		func(files []string) bool {
			collector := NewErrorCollector()
			for _, f := range files {
				collector.Add(NewTransformError("styles", f, nil))
			}
			group := collector.ByTask()["styles"]
			if len(group) != len(files) {
				return false
			}
			return sort.SliceIsSorted(group, func(i, j int) bool { return group[i].File < group[j].File })
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("Clear with no task empties the collector", prop.ForAll(
		func(n int) bool {
			collector := NewErrorCollector()
			for i := range n {
				collector.Add(NewTransformError(taskNames[i%len(taskNames)], "f", nil))
			}
			collector.Clear("")
			return !collector.HasErrors() && len(collector.Errors()) == 0
		},
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
