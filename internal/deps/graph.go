package deps

import (
	"fmt"
	"sort"
	"strings"
)

// Graph is the static dependency graph of the configured tasks
type Graph struct {
	tasks      []string
	dependsOn  map[string][]string
	dependents map[string][]string // task -> tasks that depend on it
}

// NewGraph builds a graph from task name to depends_on list
func NewGraph(dependsOn map[string][]string) *Graph {
	g := &Graph{
		dependsOn:  make(map[string][]string, len(dependsOn)),
		dependents: make(map[string][]string),
	}
	for name, list := range dependsOn {
		g.tasks = append(g.tasks, name)
		g.dependsOn[name] = list
		for _, dep := range list {
			g.dependents[dep] = append(g.dependents[dep], name)
		}
	}
	sort.Strings(g.tasks)
	for _, list := range g.dependents {
		sort.Strings(list)
	}
	return g
}

// Missing returns dependencies that are not configured tasks themselves
func (g *Graph) Missing() map[string][]string {
	missing := make(map[string][]string)
	for _, name := range g.tasks {
		for _, dep := range g.dependsOn[name] {
			if _, ok := g.dependsOn[dep]; !ok {
				missing[name] = append(missing[name], dep)
			}
		}
	}
	return missing
}

// Dependents returns how many tasks depend (transitively) on taskName
func (g *Graph) Dependents(taskName string) int {
	visited := make(map[string]bool)
	return g.countDependents(taskName, visited)
}

func (g *Graph) countDependents(taskName string, visited map[string]bool) int {
	if visited[taskName] {
		return 0
	}
	visited[taskName] = true

	count := 0
	for _, dep := range g.dependents[taskName] {
		if visited[dep] {
			continue
		}
		count += 1 + g.countDependents(dep, visited)
	}
	return count
}

// CycleError lists the tasks that could not be ordered
type CycleError struct {
	Tasks []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle between tasks: %s", strings.Join(e.Tasks, ", "))
}

// TopologicalSort returns task names with every task after the configured
// tasks it depends on. Ties are broken alphabetically.
func (g *Graph) TopologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.tasks))
	for _, name := range g.tasks {
		inDegree[name] = 0
	}
	for _, name := range g.tasks {
		for _, dep := range g.dependsOn[name] {
			if _, ok := g.dependsOn[dep]; ok {
				inDegree[name]++
			}
		}
	}

	var queue []string
	for _, name := range g.tasks {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	var result []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		result = append(result, name)

		var next []string
		for _, dependent := range g.dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				next = append(next, dependent)
			}
		}
		queue = append(queue, next...)
	}

	if len(result) < len(g.tasks) {
		var cyclic []string
		for _, name := range g.tasks {
			if inDegree[name] > 0 {
				cyclic = append(cyclic, name)
			}
		}
		return result, &CycleError{Tasks: cyclic}
	}
	return result, nil
}
