package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadConfig_NoMarker(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	assert.True(t, errors.Is(err, ErrNoWorkspace))
}

func TestLoadConfig_Defaults(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "monoflow.yaml", "version: 1\n")

	cfg, err := LoadConfig(root)
	require.NoError(t, err)
	assert.Greater(t, cfg.Concurrency, 0)
	assert.Equal(t, filepath.Join(".monoflow", "cache"), cfg.Cache.Dir)
	assert.Equal(t, []string{"packages/*"}, cfg.Packages)
}

func TestLoadConfig_Pipeline(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "monoflow.yaml", `
version: 1
concurrency: 3
pipeline:
  build:
    command: "npm run build"
    depends_on_packages: true
    inputs: ["src/**"]
    outputs: ["dist/**"]
  test:
    command: "npm test"
    depends_on: [build]
  dev:
    command: "npm run dev"
    persistent: true
`)

	cfg, err := LoadConfig(root)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Concurrency)
	build := cfg.Pipeline["build"]
	assert.True(t, build.DependsOnPackages)
	assert.Equal(t, []string{"src/**"}, build.Inputs)
	assert.Equal(t, []string{"build"}, cfg.Pipeline["test"].DependsOn)
	assert.True(t, cfg.Pipeline["dev"].Persistent)
}

func TestDiscover_ReadsManifests(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "monoflow.yaml", "version: 1\n")
	writeFile(t, root, "packages/ui/package.yaml", "name: ui\n")
	writeFile(t, root, "packages/web/package.yaml", "name: web\ndeps: [ui, react]\n")
	// No manifest: skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "packages/scratch"), 0755))

	cfg, err := LoadConfig(root)
	require.NoError(t, err)
	pkgs, err := Discover(root, cfg, nil)
	require.NoError(t, err)

	require.Len(t, pkgs, 2)
	assert.Equal(t, "ui", pkgs[0].Name)
	assert.Equal(t, "packages/ui", pkgs[0].Path)
	assert.Equal(t, "web", pkgs[1].Name)
	// Unresolved deps stay declared; the graph layer decides what to ignore.
	assert.Equal(t, []string{"ui", "react"}, pkgs[1].Deps)
}

func TestDiscover_DuplicateNames(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "monoflow.yaml", "version: 1\n")
	writeFile(t, root, "packages/a/package.yaml", "name: same\n")
	writeFile(t, root, "packages/b/package.yaml", "name: same\n")

	cfg, err := LoadConfig(root)
	require.NoError(t, err)
	_, err = Discover(root, cfg, nil)
	assert.ErrorContains(t, err, "duplicate package name")
}

func TestDiscover_MissingName(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "monoflow.yaml", "version: 1\n")
	writeFile(t, root, "packages/a/package.yaml", "deps: [b]\n")

	cfg, err := LoadConfig(root)
	require.NoError(t, err)
	_, err = Discover(root, cfg, nil)
	assert.ErrorContains(t, err, "missing package name")
}
