package model

import "fmt"

// TaskID identifies one concrete unit of work: a task type applied to a
// package. It is the globally unique key for DAG nodes, cache lookups, and
// reporter events.
type TaskID struct {
	Package string
	Task    string
}

// String renders the id in the display form used throughout the CLI,
// e.g. "build:web".
func (id TaskID) String() string {
	return fmt.Sprintf("%s:%s", id.Task, id.Package)
}

// TaskDefinition is a pipeline rule for one task type. Definitions are
// static, user-supplied configuration; task behavior is entirely data-driven
// through the command template.
type TaskDefinition struct {
	// Command is the shell command template executed in the package directory.
	Command string `yaml:"command"`
	// DependsOn names task types that must complete first within the same
	// package.
	DependsOn []string `yaml:"depends_on"`
	// DependsOnPackages requires the same task type to complete in every
	// upstream package dependency before this one runs.
	DependsOnPackages bool `yaml:"depends_on_packages"`
	// Inputs are glob patterns (relative to the package directory) whose file
	// contents feed the cache fingerprint.
	Inputs []string `yaml:"inputs"`
	// Outputs are glob patterns captured into the cache on success and
	// restored on a hit.
	Outputs []string `yaml:"outputs"`
	// Env is extra environment for the spawned command, also fingerprinted.
	Env map[string]string `yaml:"env"`
	// Persistent marks long-running tasks (watch/serve). Persistent tasks are
	// never cached; their dependents are released once startup succeeds.
	Persistent bool `yaml:"persistent"`
}

// TaskNode is one node of the concrete task DAG.
type TaskNode struct {
	ID      TaskID
	Command string
	// Dir is the working directory for the command, relative to the
	// workspace root.
	Dir string
	Env map[string]string
	// DependencyIDs are the nodes that must reach a terminal success state
	// before this node may start.
	DependencyIDs []TaskID

	Inputs     []string
	Outputs    []string
	Persistent bool
}
