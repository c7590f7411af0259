// Package change maps git diffs to the set of packages a run must cover.
package change

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path"
	"strings"

	"github.com/hsawada/monoflow/internal/graph"
	"github.com/hsawada/monoflow/internal/model"
)

// Differ is the git-diff collaborator: it lists file paths changed between
// two refs, relative to the workspace root.
type Differ interface {
	ChangedFiles(ctx context.Context, baseRef, headRef string) ([]string, error)
}

// GitDiffer shells out to git. Root is the workspace root.
type GitDiffer struct {
	Root string
}

func (d *GitDiffer) ChangedFiles(ctx context.Context, baseRef, headRef string) ([]string, error) {
	if baseRef == "" {
		return nil, fmt.Errorf("git diff: base ref is required")
	}
	spec := baseRef
	if headRef != "" {
		spec = baseRef + "..." + headRef
	}

	// --relative keeps paths relative to Root even when the workspace is a
	// subdirectory of the git repository.
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", "--relative", spec)
	cmd.Dir = d.Root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git diff %s: %w: %s", spec, err, strings.TrimSpace(stderr.String()))
	}

	var files []string
	sc := bufio.NewScanner(&stdout)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			files = append(files, line)
		}
	}
	return files, sc.Err()
}

// ChangeSet is the outcome of change detection for one base..head range.
type ChangeSet struct {
	ChangedFiles            []string
	DirectlyChangedPackages []string
	// AffectedPackages is the directly changed set plus every package whose
	// transitive dependency closure contains a changed package, in
	// discovery order.
	AffectedPackages []string
}

// Empty reports whether nothing in the workspace is touched by the diff.
func (cs ChangeSet) Empty() bool { return len(cs.AffectedPackages) == 0 }

// Detect assigns each changed file to the package whose path is its nearest
// enclosing prefix (longest prefix wins), then expands through the reverse
// dependency graph. Files outside any package path are ignored.
func Detect(packages []model.Package, changedFiles []string, g *graph.DependencyGraph) ChangeSet {
	cs := ChangeSet{ChangedFiles: changedFiles}
	if len(changedFiles) == 0 {
		return cs
	}

	direct := make(map[string]bool)
	for _, file := range changedFiles {
		if owner, ok := owningPackage(packages, file); ok {
			direct[owner] = true
		}
	}

	seeds := make([]string, 0, len(direct))
	for _, p := range packages {
		if direct[p.Name] {
			seeds = append(seeds, p.Name)
		}
	}

	cs.DirectlyChangedPackages = seeds
	cs.AffectedPackages = g.TransitiveDependents(seeds)
	return cs
}

// owningPackage finds the package whose path is the longest prefix of file.
func owningPackage(packages []model.Package, file string) (string, bool) {
	file = path.Clean(strings.ReplaceAll(file, "\\", "/"))

	best := ""
	bestLen := -1
	for _, p := range packages {
		prefix := path.Clean(strings.ReplaceAll(p.Path, "\\", "/"))
		if prefix == "." {
			// A root-level package owns everything not claimed more
			// specifically.
			if bestLen < 0 {
				best, bestLen = p.Name, 0
			}
			continue
		}
		if file == prefix || strings.HasPrefix(file, prefix+"/") {
			if len(prefix) > bestLen {
				best, bestLen = p.Name, len(prefix)
			}
		}
	}
	return best, bestLen >= 0
}
