// Package scheduler orders named initialization tasks so every task comes
// after the tasks it depends on.
//
// Schedule is a pure function: it builds a dependency graph, walks it depth
// first and returns the order in which the tasks may run. It never runs a
// task itself. Dependencies naming a task outside the input set are ignored,
// which lets a caller schedule a partial catalog and add the missing provider
// later; the provider is ordered first once it is part of the input.
//
// Among tasks that do not constrain each other, higher Priority runs first and
// equal priorities keep their declaration order.
package scheduler

import (
	"context"
	"fmt"
	"sort"

	"github.com/conneroisu/pagesmith/internal/errors"
)

// InitFunc builds the capability for a task.
type InitFunc func(ctx context.Context) (interface{}, error)

// Task is a named unit of initialization work.
type Task struct {
	Name         string
	Init         InitFunc
	Dependencies []string
	Priority     int
}

type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

type graph struct {
	tasks []Task
	index map[string]int
	state []visitState
	path  []string
	order []Task
}

// Schedule returns tasks in dependency order. A cycle fails the whole call
// with a circular dependency error naming the cycle; no partial order is
// returned.
func Schedule(tasks []Task) ([]Task, error) {
	g, err := newGraph(tasks)
	if err != nil {
		return nil, err
	}

	for _, i := range g.byPriority(allIndexes(len(tasks))) {
		if err := g.visit(i); err != nil {
			return nil, err
		}
	}

	return g.order, nil
}

// Names is a convenience that schedules tasks and returns only their names.
func Names(tasks []Task) ([]string, error) {
	ordered, err := Schedule(tasks)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ordered))
	for i, t := range ordered {
		names[i] = t.Name
	}
	return names, nil
}

// Dependents returns every task that transitively depends on name, in
// declaration order. Unknown names have no dependents.
func Dependents(tasks []Task, name string) []string {
	reverse := make(map[string][]string)
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			reverse[dep] = append(reverse[dep], t.Name)
		}
	}

	seen := map[string]bool{name: true}
	queue := []string{name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dependent := range reverse[current] {
			if !seen[dependent] {
				seen[dependent] = true
				queue = append(queue, dependent)
			}
		}
	}

	var result []string
	for _, t := range tasks {
		if t.Name != name && seen[t.Name] {
			result = append(result, t.Name)
		}
	}
	return result
}

func newGraph(tasks []Task) (*graph, error) {
	g := &graph{
		tasks: tasks,
		index: make(map[string]int, len(tasks)),
		state: make([]visitState, len(tasks)),
		order: make([]Task, 0, len(tasks)),
	}

	for i, t := range tasks {
		if t.Name == "" {
			return nil, errors.NewValidationError(
				errors.ErrCodeValidationFailed,
				fmt.Sprintf("task %d has an empty name", i),
			)
		}
		if _, exists := g.index[t.Name]; exists {
			return nil, errors.NewValidationError(
				errors.ErrCodeValidationFailed,
				"duplicate task name: "+t.Name,
			).WithContext("task", t.Name)
		}
		g.index[t.Name] = i
	}

	return g, nil
}

func (g *graph) visit(i int) error {
	switch g.state[i] {
	case visited:
		return nil
	case visiting:
		return errors.ErrCircularDependency(g.cycleTo(g.tasks[i].Name))
	}

	g.state[i] = visiting
	g.path = append(g.path, g.tasks[i].Name)

	for _, dep := range g.byPriority(g.dependencyIndexes(i)) {
		if err := g.visit(dep); err != nil {
			return err
		}
	}

	g.path = g.path[:len(g.path)-1]
	g.state[i] = visited
	g.order = append(g.order, g.tasks[i])

	return nil
}

// dependencyIndexes resolves the declared dependencies of task i to indexes,
// skipping names outside the set and repeated names.
func (g *graph) dependencyIndexes(i int) []int {
	deps := g.tasks[i].Dependencies
	if len(deps) == 0 {
		return nil
	}

	seen := make(map[int]bool, len(deps))
	indexes := make([]int, 0, len(deps))
	for _, name := range deps {
		j, ok := g.index[name]
		if !ok || seen[j] {
			continue
		}
		seen[j] = true
		indexes = append(indexes, j)
	}
	return indexes
}

// byPriority sorts indexes by descending priority, then declaration order.
func (g *graph) byPriority(indexes []int) []int {
	sort.SliceStable(indexes, func(a, b int) bool {
		pa, pb := g.tasks[indexes[a]].Priority, g.tasks[indexes[b]].Priority
		if pa != pb {
			return pa > pb
		}
		return indexes[a] < indexes[b]
	})
	return indexes
}

// cycleTo returns the current DFS path from the first visit of name back to
// name itself.
func (g *graph) cycleTo(name string) []string {
	for i, n := range g.path {
		if n == name {
			cycle := make([]string, 0, len(g.path)-i+1)
			cycle = append(cycle, g.path[i:]...)
			return append(cycle, name)
		}
	}
	return []string{name, name}
}

func allIndexes(n int) []int {
	indexes := make([]int, n)
	for i := range indexes {
		indexes[i] = i
	}
	return indexes
}
