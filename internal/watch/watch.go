// Package watch re-runs tasks for affected packages when workspace files
// change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hsawada/monoflow/internal/change"
	"github.com/hsawada/monoflow/internal/graph"
	"github.com/hsawada/monoflow/internal/logging"
	"github.com/hsawada/monoflow/internal/model"
)

// RunFunc executes the requested tasks over the affected package set.
type RunFunc func(ctx context.Context, affected []string)

// Watcher debounces filesystem events, maps changed files to packages, and
// invokes Run with the affected closure. One trigger runs at a time; events
// arriving mid-run are coalesced into the next trigger.
type Watcher struct {
	Root     string
	Packages []model.Package
	Graph    *graph.DependencyGraph
	Debounce time.Duration
	Log      *logging.Logger
	Run      RunFunc
}

// Start blocks until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	for _, p := range w.Packages {
		dir := filepath.Join(w.Root, filepath.FromSlash(p.Path))
		if err := addRecursive(watcher, dir); err != nil {
			return fmt.Errorf("watch %s: %w", p.Path, err)
		}
	}
	w.Log.Infof("watching %d packages", len(w.Packages))

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}
			// New directories join the watch set as they appear.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addRecursive(watcher, event.Name)
				}
			}
			rel, err := filepath.Rel(w.Root, event.Name)
			if err != nil {
				continue
			}
			w.Log.Debugf("fsnotify event=%s file=%s", event.Op, rel)
			pending[filepath.ToSlash(rel)] = true
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			files := make([]string, 0, len(pending))
			for f := range pending {
				files = append(files, f)
			}
			pending = make(map[string]bool)

			cs := change.Detect(w.Packages, files, w.Graph)
			if cs.Empty() {
				continue
			}
			w.Log.Infof("changed files=%d affected packages=%v", len(files), cs.AffectedPackages)
			w.Run(ctx, cs.AffectedPackages)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.Log.Errorf("fsnotify error=%v", err)
		}
	}
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		if d.Name() == ".git" || d.Name() == "node_modules" || d.Name() == ".monoflow" {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
