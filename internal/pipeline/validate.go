// Package pipeline validates the static task-type rules from monoflow.yaml.
package pipeline

import (
	"fmt"
	"sort"

	"github.com/hsawada/monoflow/internal/graph"
	"github.com/hsawada/monoflow/internal/model"
)

// Validate checks the pipeline definitions as a whole, before any DAG is
// built: every depends_on entry must name a defined task type, every task
// type must carry a command, and the task-type dependency relation
// must be acyclic. Returns *ValidationErrors on failure.
func Validate(defs map[string]model.TaskDefinition) error {
	errs := &ValidationErrors{}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	edges := make(map[string][]string)
	for _, name := range names {
		def := defs[name]
		prefix := fmt.Sprintf("pipeline.%s", name)

		if def.Command == "" {
			errs.Add(prefix+".command", "required field is missing")
		}
		for i, dep := range def.DependsOn {
			if dep == name {
				errs.Add(fmt.Sprintf("%s.depends_on[%d]", prefix, i), "self-reference is not allowed")
				continue
			}
			if _, ok := defs[dep]; !ok {
				errs.Add(fmt.Sprintf("%s.depends_on[%d]", prefix, i),
					fmt.Sprintf("references unknown task type %q", dep))
				continue
			}
			edges[name] = append(edges[name], dep)
		}
	}

	if !errs.HasErrors() && len(edges) > 0 {
		if _, err := graph.TopoSort(names, edges); err != nil {
			errs.Add("pipeline", err.Error())
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
