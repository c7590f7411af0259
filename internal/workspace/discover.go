// Package workspace loads monoflow.yaml and discovers the packages it
// declares, delegating manifest parsing to ecosystem adapters.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/hsawada/monoflow/internal/model"
	"github.com/hsawada/monoflow/internal/yaml"
)

// ConfigFile is the workspace marker. Discovery fails without it.
const ConfigFile = "monoflow.yaml"

// ErrNoWorkspace is returned when root has no workspace marker.
var ErrNoWorkspace = errors.New("no workspace found (missing monoflow.yaml)")

// ManifestAdapter reads one package manifest. Ecosystem-specific adapters
// (npm, cargo, go) implement this; monoflow ships a generic YAML adapter.
type ManifestAdapter interface {
	// Matches reports whether dir contains a manifest this adapter reads.
	Matches(dir string) bool
	// Read returns the package name and its declared dependency names.
	Read(dir string) (name string, deps []string, err error)
}

// YAMLManifest reads a plain package.yaml manifest:
//
//	name: web
//	deps: [ui, util]
type YAMLManifest struct{}

const yamlManifestFile = "package.yaml"

func (YAMLManifest) Matches(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, yamlManifestFile))
	return err == nil
}

func (YAMLManifest) Read(dir string) (string, []string, error) {
	var m struct {
		Name string   `yaml:"name"`
		Deps []string `yaml:"deps"`
	}
	if err := yaml.ReadInto(filepath.Join(dir, yamlManifestFile), &m); err != nil {
		return "", nil, err
	}
	if m.Name == "" {
		return "", nil, fmt.Errorf("%s: missing package name", filepath.Join(dir, yamlManifestFile))
	}
	return m.Name, m.Deps, nil
}

// LoadConfig parses monoflow.yaml under root and applies defaults.
func LoadConfig(root string) (model.Config, error) {
	path := filepath.Join(root, ConfigFile)
	if _, err := os.Stat(path); err != nil {
		return model.Config{}, ErrNoWorkspace
	}

	var cfg model.Config
	if err := yaml.ReadInto(path, &cfg); err != nil {
		return model.Config{}, fmt.Errorf("load %s: %w", ConfigFile, err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *model.Config) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = filepath.Join(".monoflow", "cache")
	}
	if len(cfg.Packages) == 0 {
		cfg.Packages = []string{"packages/*"}
	}
	if cfg.Watch.DebounceMs <= 0 {
		cfg.Watch.DebounceMs = 300
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry.MaxRetries = 2
	}
}

// Discover expands the config's package globs, reads each directory's
// manifest through the first matching adapter, and returns packages in a
// deterministic order (sorted by path). Directories without a recognized
// manifest are skipped. Duplicate package names are an error: names key the
// dependency graph.
func Discover(root string, cfg model.Config, adapters []ManifestAdapter) ([]model.Package, error) {
	if len(adapters) == 0 {
		adapters = []ManifestAdapter{YAMLManifest{}}
	}

	var dirs []string
	for _, pattern := range cfg.Packages {
		matches, err := filepath.Glob(filepath.Join(root, filepath.FromSlash(pattern)))
		if err != nil {
			return nil, fmt.Errorf("package pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.IsDir() {
				continue
			}
			dirs = append(dirs, m)
		}
	}
	sort.Strings(dirs)

	var packages []model.Package
	seen := make(map[string]string)
	for _, dir := range dirs {
		for _, adapter := range adapters {
			if !adapter.Matches(dir) {
				continue
			}
			name, deps, err := adapter.Read(dir)
			if err != nil {
				return nil, fmt.Errorf("read manifest in %s: %w", dir, err)
			}
			rel, err := filepath.Rel(root, dir)
			if err != nil {
				return nil, err
			}
			rel = filepath.ToSlash(rel)
			if prev, dup := seen[name]; dup {
				return nil, fmt.Errorf("duplicate package name %q in %s and %s", name, prev, rel)
			}
			seen[name] = rel
			packages = append(packages, model.Package{Name: name, Path: rel, Deps: deps})
			break
		}
	}
	return packages, nil
}
