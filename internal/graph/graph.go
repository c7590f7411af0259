// Package graph builds and validates the workspace package dependency graph.
package graph

import (
	"github.com/hsawada/monoflow/internal/model"
)

// DependencyGraph is the directed graph over discovered packages. Edges
// follow declared dependencies (package -> the packages it depends on).
// The graph is immutable after Build and safe for concurrent reads.
type DependencyGraph struct {
	order      []string // discovery order, drives deterministic tie-breaking
	packages   map[string]model.Package
	deps       map[string][]string // forward: package -> dependencies
	dependents map[string][]string // reverse: package -> packages depending on it
}

// Build constructs the graph from discovered packages. Dependency names that
// do not resolve to a discovered package are skipped: a declared dependency
// may be external to the workspace. Unresolved names per package are
// returned so callers can log a warning.
func Build(packages []model.Package) (*DependencyGraph, map[string][]string) {
	g := &DependencyGraph{
		packages:   make(map[string]model.Package, len(packages)),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}
	unresolved := make(map[string][]string)

	for _, p := range packages {
		g.order = append(g.order, p.Name)
		g.packages[p.Name] = p
	}
	for _, p := range packages {
		for _, dep := range p.Deps {
			if _, ok := g.packages[dep]; !ok {
				unresolved[p.Name] = append(unresolved[p.Name], dep)
				continue
			}
			g.deps[p.Name] = append(g.deps[p.Name], dep)
			g.dependents[dep] = append(g.dependents[dep], p.Name)
		}
	}
	return g, unresolved
}

// Validate checks acyclicity. On failure the returned error is a
// *CycleError naming the cycle members in order.
func (g *DependencyGraph) Validate() error {
	_, err := TopoSort(g.order, g.deps)
	return err
}

// Sorted returns one topological order of package names, dependencies
// first, with ties broken by discovery order. Calling Sorted on a cyclic
// graph is undefined; Validate must succeed first.
func (g *DependencyGraph) Sorted() []string {
	sorted, err := TopoSort(g.order, g.deps)
	if err != nil {
		return nil
	}
	return sorted
}

// Package returns the package record for name.
func (g *DependencyGraph) Package(name string) (model.Package, bool) {
	p, ok := g.packages[name]
	return p, ok
}

// Names returns package names in discovery order.
func (g *DependencyGraph) Names() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Dependencies returns the direct workspace dependencies of name.
func (g *DependencyGraph) Dependencies(name string) []string {
	return g.deps[name]
}

// Dependents returns the packages that directly depend on name.
func (g *DependencyGraph) Dependents(name string) []string {
	return g.dependents[name]
}

// TransitiveDependents expands seeds to every package whose dependency
// closure contains a seed, seeds included. The result preserves discovery
// order.
func (g *DependencyGraph) TransitiveDependents(seeds []string) []string {
	affected := make(map[string]bool, len(seeds))
	queue := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if _, ok := g.packages[s]; !ok || affected[s] {
			continue
		}
		affected[s] = true
		queue = append(queue, s)
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, dep := range g.dependents[name] {
			if !affected[dep] {
				affected[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	var out []string
	for _, name := range g.order {
		if affected[name] {
			out = append(out, name)
		}
	}
	return out
}
