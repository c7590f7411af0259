package graph

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle with its ordered membership.
type CycleError struct {
	// Members is the cycle path in forward edge order, each node once.
	Members []string
}

func (e *CycleError) Error() string {
	display := e.Members
	if len(display) > 0 {
		display = append(append([]string{}, display...), display[0])
	}
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(display, " -> "))
}

// TopoSort orders nodeNames so every dependency precedes its dependents,
// using Kahn's algorithm. edges maps a node to the nodes it depends on.
// Ties are broken by the original order of nodeNames so the result is
// deterministic. Edge targets absent from nodeNames are skipped; callers
// validate unknown references separately.
//
// On a cycle, the returned error is a *CycleError whose path is
// reconstructed by DFS over the unplaced nodes.
func TopoSort(nodeNames []string, edges map[string][]string) ([]string, error) {
	if len(nodeNames) == 0 {
		return nil, nil
	}

	nodeSet := make(map[string]bool, len(nodeNames))
	for _, n := range nodeNames {
		nodeSet[n] = true
	}

	inDegree := make(map[string]int, len(nodeNames))
	forward := make(map[string][]string)
	for _, n := range nodeNames {
		inDegree[n] = 0
	}
	for node, deps := range edges {
		if !nodeSet[node] {
			continue
		}
		for _, dep := range deps {
			if !nodeSet[dep] {
				continue
			}
			inDegree[node]++
			forward[dep] = append(forward[dep], node)
		}
	}

	index := make(map[string]int, len(nodeNames))
	for i, n := range nodeNames {
		index[n] = i
	}

	// The ready set is kept ordered by discovery index at all times, so each
	// step takes the lowest-index node whose dependencies are settled. A node
	// released late still sorts ahead of a higher-index node already waiting.
	var ready []string
	for _, n := range nodeNames {
		if inDegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	insert := func(n string) {
		i := len(ready)
		for i > 0 && index[ready[i-1]] > index[n] {
			i--
		}
		ready = append(ready, "")
		copy(ready[i+1:], ready[i:])
		ready[i] = n
	}

	var sorted []string
	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		sorted = append(sorted, node)

		for _, dependent := range forward[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				insert(dependent)
			}
		}
	}

	if len(sorted) == len(nodeNames) {
		return sorted, nil
	}

	return nil, &CycleError{Members: findCyclePath(nodeNames, edges, inDegree)}
}

// findCyclePath locates a cycle among nodes left with non-zero in-degree
// after Kahn's algorithm stalls, using white/gray/black DFS coloring and
// reconstructing the path through parent links when a back edge is hit.
func findCyclePath(nodeNames []string, edges map[string][]string, inDegree map[string]int) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int)
	parent := make(map[string]string)

	var cyclePath []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		color[node] = gray
		for _, dep := range edges[node] {
			if _, known := inDegree[dep]; !known {
				continue
			}
			if color[dep] == gray {
				cyclePath = []string{dep}
				current := node
				for current != dep {
					cyclePath = append(cyclePath, current)
					current = parent[current]
				}
				for i, j := 0, len(cyclePath)-1; i < j; i, j = i+1, j-1 {
					cyclePath[i], cyclePath[j] = cyclePath[j], cyclePath[i]
				}
				return true
			}
			if color[dep] == white {
				parent[dep] = node
				if dfs(dep) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	for _, n := range nodeNames {
		if inDegree[n] > 0 && color[n] == white {
			if dfs(n) {
				return cyclePath
			}
		}
	}

	return []string{"(cycle detected)"}
}
