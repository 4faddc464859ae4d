package registry

import (
	"sort"

	"github.com/conneroisu/shroot/internal/dom"
	"golang.org/x/net/html"
)

// DependencyAnalyzer finds which registered types a template's content
// uses, i.e. custom elements inside the content whose tag is itself a
// registered type.
type DependencyAnalyzer struct {
	registry *TemplateRegistry
}

// NewDependencyAnalyzer creates a new dependency analyzer
func NewDependencyAnalyzer(registry *TemplateRegistry) *DependencyAnalyzer {
	return &DependencyAnalyzer{
		registry: registry,
	}
}

// Dependencies returns the registered types used by typeID's content,
// sorted. Self references are left out.
func (da *DependencyAnalyzer) Dependencies(typeID string) []string {
	t, ok := da.registry.Lookup(typeID)
	if !ok {
		return nil
	}
	return da.analyze(t)
}

func (da *DependencyAnalyzer) analyze(t *Template) []string {
	seen := make(map[string]bool)
	for _, n := range t.content {
		dom.WalkElements(n, func(el *html.Node) {
			tag := dom.TagName(el)
			if tag == "" || tag == t.typeID || seen[tag] {
				return
			}
			if da.registry.Contains(tag) {
				seen[tag] = true
			}
		})
	}

	deps := make([]string, 0, len(seen))
	for dep := range seen {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	return deps
}

// DependencyGraph returns the dependencies of every registered type.
func (da *DependencyAnalyzer) DependencyGraph() map[string][]string {
	graph := make(map[string][]string)
	for _, t := range da.registry.All() {
		graph[t.typeID] = da.analyze(t)
	}
	return graph
}

// Dependents returns the registered types whose content uses typeID.
func (da *DependencyAnalyzer) Dependents(typeID string) []string {
	key := Key(typeID)
	var dependents []string
	for name, deps := range da.DependencyGraph() {
		for _, dep := range deps {
			if dep == key {
				dependents = append(dependents, name)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

// DetectCircularDependencies returns one path per cycle found, with the
// first type repeated at the end.
func (da *DependencyAnalyzer) DetectCircularDependencies() [][]string {
	var cycles [][]string
	graph := da.DependencyGraph()

	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	for _, name := range names {
		if !visited[name] {
			if cycle := detectCycleDFS(name, graph, visited, recStack, nil); cycle != nil {
				cycles = append(cycles, cycle)
			}
		}
	}

	return cycles
}

func detectCycleDFS(component string, graph map[string][]string, visited, recStack map[string]bool, path []string) []string {
	visited[component] = true
	recStack[component] = true
	path = append(path, component)

	for _, dep := range graph[component] {
		if !visited[dep] {
			if cycle := detectCycleDFS(dep, graph, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dep] {
			for i, p := range path {
				if p == dep {
					cycle := make([]string, len(path)-i+1)
					copy(cycle, path[i:])
					cycle[len(cycle)-1] = dep
					return cycle
				}
			}
		}
	}

	recStack[component] = false
	return nil
}
