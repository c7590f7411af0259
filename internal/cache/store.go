package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hsawada/monoflow/internal/lock"
	"github.com/hsawada/monoflow/internal/yaml"
)

const metaFile = "meta.yaml"

// Entry is the persisted metadata for one cache key.
type Entry struct {
	Key string `yaml:"key"`
	// Outputs are the captured file paths, relative to the workspace root.
	Outputs   []string  `yaml:"outputs"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Store is a workspace-local, content-addressed cache: one directory per
// key under the cache root, holding captured output files plus a metadata
// record. Writes to the same key are idempotent since content is identical
// by construction; a striped lock serializes them.
type Store struct {
	root  string
	locks *lock.StripedMutex
}

func NewStore(root string) *Store {
	return &Store{root: root, locks: lock.NewStripedMutex()}
}

func (s *Store) entryDir(key string) string {
	return filepath.Join(s.root, key)
}

// Lookup returns the entry for key, or false on a miss. Any read or parse
// failure is a miss; callers may log the returned error as a warning but
// must never abort the run on it.
func (s *Store) Lookup(key string) (*Entry, bool, error) {
	metaPath := filepath.Join(s.entryDir(key), metaFile)
	if _, err := os.Stat(metaPath); err != nil {
		return nil, false, nil
	}
	var entry Entry
	if err := yaml.ReadInto(metaPath, &entry); err != nil {
		return nil, false, fmt.Errorf("cache entry %s is corrupt: %w", key, err)
	}
	if entry.Key != key {
		return nil, false, fmt.Errorf("cache entry %s has mismatched key %s", key, entry.Key)
	}
	return &entry, true, nil
}

// Save captures the files matching outputs (globs relative to workspaceRoot)
// under the entry directory and writes the metadata record last, atomically,
// so a partially written entry is never observed as valid.
func (s *Store) Save(key, workspaceRoot string, outputs []string) error {
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	// Identical content: an existing valid entry makes re-capture a no-op.
	if _, ok, _ := s.Lookup(key); ok {
		return nil
	}

	files, err := resolveInputs(workspaceRoot, outputs)
	if err != nil {
		return fmt.Errorf("resolving outputs: %w", err)
	}

	dir := s.entryDir(key)
	filesDir := filepath.Join(dir, "files")
	if err := os.MkdirAll(filesDir, 0755); err != nil {
		return fmt.Errorf("create cache entry dir: %w", err)
	}

	for _, file := range files {
		src := filepath.Join(workspaceRoot, filepath.FromSlash(file))
		dst := filepath.Join(filesDir, filepath.FromSlash(file))
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("capture output %q: %w", file, err)
		}
	}

	entry := Entry{Key: key, Outputs: files, CreatedAt: time.Now().UTC()}
	if err := yaml.AtomicWrite(filepath.Join(dir, metaFile), entry); err != nil {
		return fmt.Errorf("write cache metadata: %w", err)
	}
	return nil
}

// Restore copies an entry's captured outputs back into the workspace. Tasks
// whose outputs are purely side-effecting have no captured files and restore
// is a no-op.
func (s *Store) Restore(entry *Entry, workspaceRoot string) error {
	filesDir := filepath.Join(s.entryDir(entry.Key), "files")
	for _, file := range entry.Outputs {
		src := filepath.Join(filesDir, filepath.FromSlash(file))
		dst := filepath.Join(workspaceRoot, filepath.FromSlash(file))
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("restore output %q: %w", file, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
