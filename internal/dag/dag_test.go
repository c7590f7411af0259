package dag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsawada/monoflow/internal/graph"
	"github.com/hsawada/monoflow/internal/model"
)

func buildGraph(t *testing.T, pkgs ...model.Package) *graph.DependencyGraph {
	t.Helper()
	g, _ := graph.Build(pkgs)
	require.NoError(t, g.Validate())
	return g
}

func id(task, pkg string) model.TaskID {
	return model.TaskID{Package: pkg, Task: task}
}

func waveStrings(waves [][]model.TaskID) [][]string {
	out := make([][]string, len(waves))
	for i, w := range waves {
		for _, n := range w {
			out[i] = append(out[i], n.String())
		}
	}
	return out
}

func TestBuild_CrossPackageEdges(t *testing.T) {
	g := buildGraph(t,
		model.Package{Name: "a", Path: "packages/a"},
		model.Package{Name: "b", Path: "packages/b", Deps: []string{"a"}},
	)
	defs := map[string]model.TaskDefinition{
		"build": {Command: "make build", DependsOnPackages: true},
	}

	d, err := Build(g, defs, []string{"build"}, []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, 2, d.Len())
	b, _ := d.Node(id("build", "b"))
	assert.Equal(t, []model.TaskID{id("build", "a")}, b.DependencyIDs)

	assert.Equal(t, [][]string{{"build:a"}, {"build:b"}}, waveStrings(d.Waves()))
}

func TestBuild_ImplicitDependencyExpansion(t *testing.T) {
	g := buildGraph(t,
		model.Package{Name: "a", Path: "packages/a"},
		model.Package{Name: "b", Path: "packages/b"},
	)
	defs := map[string]model.TaskDefinition{
		"build": {Command: "make build"},
		"test":  {Command: "make test", DependsOn: []string{"build"}},
	}

	// Only "test" is requested; "build" nodes are added implicitly.
	d, err := Build(g, defs, []string{"test"}, []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, 4, d.Len())
	assert.Equal(t,
		[][]string{{"build:a", "build:b"}, {"test:a", "test:b"}},
		waveStrings(d.Waves()))
}

func TestBuild_UnknownTaskType(t *testing.T) {
	g := buildGraph(t, model.Package{Name: "a", Path: "packages/a"})

	_, err := Build(g, map[string]model.TaskDefinition{}, []string{"deploy"}, []string{"a"})
	var unknown *UnknownTaskTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "deploy", unknown.Task)
}

func TestBuild_MissingUpstreamTaskOmitsEdge(t *testing.T) {
	g := buildGraph(t,
		model.Package{Name: "lib", Path: "packages/lib"},
		model.Package{Name: "app", Path: "packages/app", Deps: []string{"lib"}},
	)
	defs := map[string]model.TaskDefinition{
		"build": {Command: "make build", DependsOnPackages: true},
	}

	// Only app is selected; lib has no node, so app's build has no
	// prerequisite on that branch.
	d, err := Build(g, defs, []string{"build"}, []string{"app"})
	require.NoError(t, err)

	app, _ := d.Node(id("build", "app"))
	assert.Empty(t, app.DependencyIDs)
}

func TestBuild_ContradictoryConfigurationIsCycle(t *testing.T) {
	// The package graph itself stays acyclic; the cycle comes from two task
	// types depending on each other across expansion.
	g := buildGraph(t, model.Package{Name: "a", Path: "packages/a"})
	defs := map[string]model.TaskDefinition{
		"build": {Command: "b", DependsOn: []string{"test"}},
		"test":  {Command: "t", DependsOn: []string{"build"}},
	}

	_, err := Build(g, defs, []string{"build"}, []string{"a"})
	var cyc *graph.CycleError
	require.Error(t, err)
	assert.True(t, errors.As(err, &cyc))
}

func TestBuild_InputsRebasedOnWorkspaceRoot(t *testing.T) {
	g := buildGraph(t, model.Package{Name: "a", Path: "packages/a"})
	defs := map[string]model.TaskDefinition{
		"build": {Command: "make", Inputs: []string{"src/**"}, Outputs: []string{"dist/*"}},
	}

	d, err := Build(g, defs, []string{"build"}, []string{"a"})
	require.NoError(t, err)

	n, _ := d.Node(id("build", "a"))
	assert.Equal(t, []string{"packages/a/src/**"}, n.Inputs)
	assert.Equal(t, []string{"packages/a/dist/*"}, n.Outputs)
}

func TestDependents_ReverseIndex(t *testing.T) {
	g := buildGraph(t,
		model.Package{Name: "a", Path: "packages/a"},
		model.Package{Name: "b", Path: "packages/b", Deps: []string{"a"}},
	)
	defs := map[string]model.TaskDefinition{
		"build": {Command: "make", DependsOnPackages: true},
	}

	d, err := Build(g, defs, []string{"build"}, []string{"a", "b"})
	require.NoError(t, err)

	rev := d.Dependents()
	assert.Equal(t, []model.TaskID{id("build", "b")}, rev[id("build", "a")])
}
