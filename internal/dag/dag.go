// Package dag expands pipeline definitions over selected packages into the
// concrete DAG of (package, task) work units.
package dag

import (
	"fmt"
	"path"
	"sort"

	"github.com/hsawada/monoflow/internal/graph"
	"github.com/hsawada/monoflow/internal/model"
)

// UnknownTaskTypeError reports a requested task name with no pipeline
// definition.
type UnknownTaskTypeError struct {
	Task string
}

func (e *UnknownTaskTypeError) Error() string {
	return fmt.Sprintf("unknown task type %q: no pipeline definition", e.Task)
}

// TaskDag is the validated DAG of concrete task nodes for one invocation.
type TaskDag struct {
	nodes map[model.TaskID]*model.TaskNode
	order []model.TaskID // deterministic creation order
	waves [][]model.TaskID
}

// Build creates one node per selected package × requested task type,
// recursively pulling in unrequested depends_on task types so ordering
// holds, and adds cross-package edges for depends_on_packages task types.
// Pipeline definitions must already be validated; a cycle surfacing here
// still fails construction rather than being silently broken.
func Build(g *graph.DependencyGraph, defs map[string]model.TaskDefinition, requested []string, selected []string) (*TaskDag, error) {
	for _, task := range requested {
		if _, ok := defs[task]; !ok {
			return nil, &UnknownTaskTypeError{Task: task}
		}
	}

	d := &TaskDag{nodes: make(map[model.TaskID]*model.TaskNode)}

	// Expand nodes package by package. The worklist carries implicitly added
	// dependency task types; it terminates because pipeline depends_on
	// relations are acyclic by prior validation.
	for _, pkgName := range selected {
		pkg, ok := g.Package(pkgName)
		if !ok {
			return nil, fmt.Errorf("selected package %q is not in the dependency graph", pkgName)
		}
		worklist := append([]string{}, requested...)
		for len(worklist) > 0 {
			task := worklist[0]
			worklist = worklist[1:]
			id := model.TaskID{Package: pkgName, Task: task}
			if _, exists := d.nodes[id]; exists {
				continue
			}
			def, ok := defs[task]
			if !ok {
				return nil, fmt.Errorf("task type %q: depends_on references unknown task type", task)
			}
			d.addNode(id, pkg, def)
			worklist = append(worklist, def.DependsOn...)
		}
	}

	// Edges. Same-package first, then cross-package for depends_on_packages
	// task types. A dependency edge is only added when the upstream node
	// exists: a package dependency without the task type has no
	// prerequisite on that branch.
	for _, id := range d.order {
		def := defs[id.Task]
		node := d.nodes[id]

		for _, depTask := range def.DependsOn {
			depID := model.TaskID{Package: id.Package, Task: depTask}
			if _, ok := d.nodes[depID]; ok {
				node.DependencyIDs = append(node.DependencyIDs, depID)
			}
		}
		if def.DependsOnPackages {
			for _, upstream := range g.Dependencies(id.Package) {
				depID := model.TaskID{Package: upstream, Task: id.Task}
				if _, ok := d.nodes[depID]; ok {
					node.DependencyIDs = append(node.DependencyIDs, depID)
				}
			}
		}
	}

	if err := d.validate(); err != nil {
		return nil, err
	}
	d.waves = d.computeWaves()
	return d, nil
}

func (d *TaskDag) addNode(id model.TaskID, pkg model.Package, def model.TaskDefinition) {
	env := make(map[string]string, len(def.Env))
	for k, v := range def.Env {
		env[k] = v
	}
	d.nodes[id] = &model.TaskNode{
		ID:         id,
		Command:    def.Command,
		Dir:        pkg.Path,
		Env:        env,
		Inputs:     prefixPatterns(pkg.Path, def.Inputs),
		Outputs:    prefixPatterns(pkg.Path, def.Outputs),
		Persistent: def.Persistent,
	}
	d.order = append(d.order, id)
}

// prefixPatterns rebases package-relative glob patterns onto the workspace
// root.
func prefixPatterns(dir string, patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = path.Join(dir, p)
	}
	return out
}

// validate re-checks acyclicity over the concrete node set. A cycle here
// means contradictory pipeline configuration (for example a package cycle
// combined with depends_on_packages) and is a construction error.
func (d *TaskDag) validate() error {
	names := make([]string, 0, len(d.order))
	edges := make(map[string][]string)
	for _, id := range d.order {
		names = append(names, id.String())
		for _, dep := range d.nodes[id].DependencyIDs {
			edges[id.String()] = append(edges[id.String()], dep.String())
		}
	}
	_, err := graph.TopoSort(names, edges)
	return err
}

// Node returns the node for id.
func (d *TaskDag) Node(id model.TaskID) (*model.TaskNode, bool) {
	n, ok := d.nodes[id]
	return n, ok
}

// Len returns the node count.
func (d *TaskDag) Len() int { return len(d.nodes) }

// IDs returns all node ids in deterministic creation order.
func (d *TaskDag) IDs() []model.TaskID {
	out := make([]model.TaskID, len(d.order))
	copy(out, d.order)
	return out
}

// Dependents returns, for every node, the ids that depend on it. The
// scheduler uses this reverse index for in-degree bookkeeping and skip
// propagation.
func (d *TaskDag) Dependents() map[model.TaskID][]model.TaskID {
	rev := make(map[model.TaskID][]model.TaskID, len(d.nodes))
	for _, id := range d.order {
		for _, dep := range d.nodes[id].DependencyIDs {
			rev[dep] = append(rev[dep], id)
		}
	}
	return rev
}

// Waves returns the topological layering: wave 0 holds nodes with no
// dependencies, wave k holds nodes whose dependencies all lie in earlier
// waves. Waves are a planning/display artifact; execution uses a ready
// queue instead.
func (d *TaskDag) Waves() [][]model.TaskID {
	out := make([][]model.TaskID, len(d.waves))
	for i, w := range d.waves {
		out[i] = append([]model.TaskID{}, w...)
	}
	return out
}

func (d *TaskDag) computeWaves() [][]model.TaskID {
	placed := make(map[model.TaskID]bool, len(d.nodes))

	remaining := len(d.nodes)
	var waves [][]model.TaskID
	for remaining > 0 {
		var wave []model.TaskID
		for _, id := range d.order {
			if placed[id] {
				continue
			}
			ready := true
			for _, dep := range d.nodes[id].DependencyIDs {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, id)
			}
		}
		// An empty wave is impossible on a validated acyclic node set.
		for _, id := range wave {
			placed[id] = true
		}
		sort.Slice(wave, func(i, j int) bool { return wave[i].String() < wave[j].String() })
		waves = append(waves, wave)
		remaining -= len(wave)
	}
	return waves
}
