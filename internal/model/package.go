// Package model defines the data structures for monoflow's workspace,
// pipeline configuration, and task execution results.
package model

// Package is a single workspace package as reported by a manifest adapter.
// Instances are created once per discovery run and immutable afterward.
type Package struct {
	// Name is the manifest-declared package name, unique across the workspace.
	Name string `yaml:"name"`
	// Path is the package directory relative to the workspace root.
	Path string `yaml:"path"`
	// Deps lists declared dependency names. Names that do not resolve to a
	// discovered package are kept here but ignored when building graph edges.
	Deps []string `yaml:"deps"`
}
