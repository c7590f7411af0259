package cache

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// resolveInputs expands glob patterns (relative to root) into a sorted,
// de-duplicated list of file paths relative to root. Expansion is strictly
// sorted so fingerprints never depend on filesystem ordering. Patterns may
// use "**" to match across directory levels.
func resolveInputs(root string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	pathSet := make(map[string]struct{})
	for _, pattern := range patterns {
		matches, err := expandPattern(root, pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			pathSet[m] = struct{}{}
		}
	}

	paths := make([]string, 0, len(pathSet))
	for p := range pathSet {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func expandPattern(root, pattern string) ([]string, error) {
	pattern = path.Clean(filepath.ToSlash(pattern))

	if !strings.Contains(pattern, "**") {
		matches, err := filepath.Glob(filepath.Join(root, filepath.FromSlash(pattern)))
		if err != nil {
			return nil, err
		}
		var out []string
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			rel, err := filepath.Rel(root, m)
			if err != nil {
				return nil, err
			}
			out = append(out, filepath.ToSlash(rel))
		}
		// Literal path with no matches and no glob characters: absent files
		// simply contribute nothing to the fingerprint.
		return out, nil
	}

	// "**" patterns walk the static prefix directory and match each file
	// against the full pattern.
	prefix := staticPrefix(pattern)
	base := filepath.Join(root, filepath.FromSlash(prefix))
	if _, err := os.Stat(base); err != nil {
		return nil, nil
	}

	var out []string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if globMatch(pattern, name) {
			out = append(out, name)
		}
		return nil
	})
	return out, err
}

// staticPrefix returns the leading pattern segments containing no glob
// metacharacters.
func staticPrefix(pattern string) string {
	segs := strings.Split(pattern, "/")
	var kept []string
	for _, seg := range segs {
		if strings.ContainsAny(seg, "*?[") {
			break
		}
		kept = append(kept, seg)
	}
	return strings.Join(kept, "/")
}

// globMatch matches slash-separated name against pattern, where "*" and "?"
// match within one segment (path.Match semantics) and a "**" segment
// matches zero or more whole segments.
func globMatch(pattern, name string) bool {
	return segMatch(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func segMatch(pat, segs []string) bool {
	if len(pat) == 0 {
		return len(segs) == 0
	}
	if pat[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if segMatch(pat[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	ok, err := path.Match(pat[0], segs[0])
	if err != nil || !ok {
		return false
	}
	return segMatch(pat[1:], segs[1:])
}
