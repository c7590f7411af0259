package graph

import (
	"errors"
	"testing"

	"github.com/hsawada/monoflow/internal/model"
)

func pkg(name string, deps ...string) model.Package {
	return model.Package{Name: name, Path: "packages/" + name, Deps: deps}
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func TestTopoSort_LinearChain(t *testing.T) {
	names := []string{"a", "b", "c"}
	deps := map[string][]string{
		"b": {"a"},
		"c": {"b"},
	}

	sorted, err := TopoSort(names, deps)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if indexOf(sorted, "a") >= indexOf(sorted, "b") {
		t.Errorf("expected a before b, got %v", sorted)
	}
	if indexOf(sorted, "b") >= indexOf(sorted, "c") {
		t.Errorf("expected b before c, got %v", sorted)
	}
}

func TestTopoSort_StableTieBreak(t *testing.T) {
	names := []string{"z", "m", "a"}
	sorted, err := TopoSort(names, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// Independent nodes stay in discovery order.
	want := []string{"z", "m", "a"}
	for i := range want {
		if sorted[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, sorted)
		}
	}
}

func TestTopoSort_LateReleaseKeepsDiscoveryOrder(t *testing.T) {
	// b is released only after a settles, while c is ready from the start.
	// b's lower discovery index must still place it ahead of c.
	names := []string{"a", "b", "c"}
	deps := map[string][]string{
		"b": {"a"},
	}

	sorted, err := TopoSort(names, deps)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if sorted[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, sorted)
		}
	}
}

func TestTopoSort_Diamond(t *testing.T) {
	names := []string{"a", "b", "c", "d"}
	deps := map[string][]string{
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
	}

	sorted, err := TopoSort(names, deps)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(sorted) != 4 {
		t.Fatalf("expected 4 nodes, got %v", sorted)
	}
	if indexOf(sorted, "a") != 0 || indexOf(sorted, "d") != 3 {
		t.Errorf("expected a first and d last, got %v", sorted)
	}
}

func TestValidate_CycleMembers(t *testing.T) {
	g, _ := Build([]model.Package{pkg("x", "y"), pkg("y", "x")})

	err := g.Validate()
	if err == nil {
		t.Fatal("expected cycle error")
	}
	var cyc *CycleError
	if !errors.As(err, &cyc) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	if len(cyc.Members) != 2 {
		t.Fatalf("expected 2 cycle members, got %v", cyc.Members)
	}
	seen := map[string]bool{}
	for _, m := range cyc.Members {
		seen[m] = true
	}
	if !seen["x"] || !seen["y"] {
		t.Errorf("expected members {x, y}, got %v", cyc.Members)
	}
}

func TestBuild_UnresolvedDepsIgnored(t *testing.T) {
	g, unresolved := Build([]model.Package{pkg("a", "lodash"), pkg("b", "a")})

	if err := g.Validate(); err != nil {
		t.Fatalf("expected valid graph, got %v", err)
	}
	if len(g.Dependencies("a")) != 0 {
		t.Errorf("external dep must not create an edge: %v", g.Dependencies("a"))
	}
	if got := unresolved["a"]; len(got) != 1 || got[0] != "lodash" {
		t.Errorf("expected unresolved lodash for a, got %v", unresolved)
	}
}

func TestTransitiveDependents(t *testing.T) {
	// c -> b -> a, d independent
	g, _ := Build([]model.Package{pkg("a"), pkg("b", "a"), pkg("c", "b"), pkg("d")})

	got := g.TransitiveDependents([]string{"a"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestSorted_DependenciesFirst(t *testing.T) {
	g, _ := Build([]model.Package{pkg("app", "lib"), pkg("lib")})

	sorted := g.Sorted()
	if indexOf(sorted, "lib") >= indexOf(sorted, "app") {
		t.Errorf("expected lib before app, got %v", sorted)
	}
}
