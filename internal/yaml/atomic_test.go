package yaml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWrite_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.yaml")

	type doc struct {
		Key   string `yaml:"key"`
		Count int    `yaml:"count"`
	}
	require.NoError(t, AtomicWrite(path, doc{Key: "abc", Count: 3}))

	var got doc
	require.NoError(t, ReadInto(path, &got))
	assert.Equal(t, doc{Key: "abc", Count: 3}, got)
}

func TestAtomicWrite_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AtomicWrite(filepath.Join(dir, "a.yaml"), map[string]string{"k": "v"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "a.yaml", entries[0].Name())
}

func TestAtomicWrite_OverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.yaml")
	require.NoError(t, AtomicWrite(path, map[string]int{"gen": 1}))
	require.NoError(t, AtomicWrite(path, map[string]int{"gen": 2}))

	var got map[string]int
	require.NoError(t, ReadInto(path, &got))
	assert.Equal(t, 2, got["gen"])
}
