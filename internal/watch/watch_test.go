package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hsawada/monoflow/internal/graph"
	"github.com/hsawada/monoflow/internal/logging"
	"github.com/hsawada/monoflow/internal/model"
)

func TestWatcherTriggersAffectedClosure(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"packages/a", "packages/b"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, p), 0755))
	}

	packages := []model.Package{
		{Name: "a", Path: "packages/a"},
		{Name: "b", Path: "packages/b", Deps: []string{"a"}},
	}
	g, _ := graph.Build(packages)
	require.NoError(t, g.Validate())

	triggered := make(chan []string, 1)
	w := &Watcher{
		Root:     root,
		Packages: packages,
		Graph:    g,
		Debounce: 50 * time.Millisecond,
		Log:      logging.Nop(),
		Run: func(ctx context.Context, affected []string) {
			select {
			case triggered <- affected:
			default:
			}
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	// Give the watcher a moment to register the package directories.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "packages/a/main.txt"), []byte("v2"), 0644))

	select {
	case affected := <-triggered:
		require.Equal(t, []string{"a", "b"}, affected)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not trigger a run")
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestWatcherIgnoresFilesOutsidePackages(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "packages/a"), 0755))

	packages := []model.Package{{Name: "a", Path: "packages/a"}}
	g, _ := graph.Build(packages)

	triggered := make(chan []string, 1)
	w := &Watcher{
		Root:     root,
		Packages: packages,
		Graph:    g,
		Debounce: 50 * time.Millisecond,
		Log:      logging.Nop(),
		Run: func(ctx context.Context, affected []string) {
			select {
			case triggered <- affected:
			default:
			}
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()

	time.Sleep(100 * time.Millisecond)
	// Only package directories are watched, so this never reaches Detect.
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0644))

	select {
	case affected := <-triggered:
		t.Fatalf("unexpected trigger for %v", affected)
	case <-time.After(300 * time.Millisecond):
	}
}
