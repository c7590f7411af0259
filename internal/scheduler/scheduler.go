// Package scheduler executes the task DAG with bounded concurrency,
// consulting the cache and broadcasting progress events.
package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/hsawada/monoflow/internal/cache"
	"github.com/hsawada/monoflow/internal/dag"
	"github.com/hsawada/monoflow/internal/events"
	"github.com/hsawada/monoflow/internal/exec"
	"github.com/hsawada/monoflow/internal/logging"
	"github.com/hsawada/monoflow/internal/model"
)

// Options controls one Execute invocation.
type Options struct {
	Concurrency int
	// ContinueOnError keeps independent branches running after a failure.
	// Dependents of a failed node are always skipped either way.
	ContinueOnError bool
	UseCache        bool
	// DryRun walks the graph and reports the plan without spawning commands
	// or writing cache entries.
	DryRun bool
}

// Scheduler wires the collaborators for task execution. All handles are
// per-invocation; there is no shared global state.
type Scheduler struct {
	Root        string
	Runner      exec.Runner
	Store       *cache.Store
	Fingerprint *cache.Fingerprinter
	Events      *events.Registry
	Log         *logging.Logger
	Retry       model.RetryConfig
}

type msgKind int

const (
	msgOutput msgKind = iota
	msgDone
)

type message struct {
	kind   msgKind
	id     model.TaskID
	line   string
	stderr bool

	status   model.Status
	reason   string
	key      string
	duration time.Duration
}

// Execute runs the DAG as a ready queue: nodes whose dependencies are all in
// a terminal success state are admitted to a pool bounded by Concurrency.
// Beyond the DAG's partial order no ordering is guaranteed. The returned
// results cover every node; the run failed iff any result is Failed.
func (s *Scheduler) Execute(ctx context.Context, d *dag.TaskDag, opts Options) ([]model.TaskResult, error) {
	if d == nil || d.Len() == 0 {
		return nil, nil
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	if opts.DryRun {
		return s.dryRun(d), nil
	}

	dependents := d.Dependents()
	waves := d.Waves()
	waveOf := make(map[model.TaskID]int, d.Len())
	for i, wave := range waves {
		for _, id := range wave {
			waveOf[id] = i
		}
	}

	status := make(map[model.TaskID]model.Status, d.Len())
	indeg := make(map[model.TaskID]int, d.Len())
	keys := make(map[model.TaskID]string)

	var ready []model.TaskID
	for _, id := range d.IDs() {
		status[id] = model.StatusPending
		node, _ := d.Node(id)
		indeg[id] = len(node.DependencyIDs)
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}

	sem := semaphore.NewWeighted(int64(opts.Concurrency))
	msgs := make(chan message)
	loopDone := make(chan struct{})
	defer close(loopDone)

	var results []model.TaskResult
	stopping := false
	announcedWave := -1

	terminal := 0
	settle := func(id model.TaskID, st model.Status) {
		status[id] = st
		terminal++
		for _, dep := range dependents[id] {
			indeg[dep]--
			if indeg[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	skip := func(id model.TaskID, reason string) {
		s.Events.Emit(events.Event{Type: events.TypeStarted, ID: id})
		s.Events.Emit(events.Event{Type: events.TypeSkipped, ID: id, Reason: reason})
		results = append(results, model.TaskResult{ID: id, Status: model.StatusSkipped, Reason: reason})
		settle(id, model.StatusSkipped)
	}

	// blockedBy returns the terminal non-success dependency to blame, if any.
	blockedBy := func(id model.TaskID) (model.TaskID, bool) {
		node, _ := d.Node(id)
		for _, dep := range node.DependencyIDs {
			if st := status[dep]; st.Terminal() && !st.Satisfied() {
				return dep, true
			}
		}
		return model.TaskID{}, false
	}

	admit := func(id model.TaskID) {
		if w := waveOf[id]; w > announcedWave {
			announcedWave = w
			s.Events.Emit(events.Event{Type: events.TypeWaveStarted, Wave: w})
		}
		s.Events.Emit(events.Event{Type: events.TypeStarted, ID: id})
		status[id] = model.StatusRunning

		node, _ := d.Node(id)
		var upstream []string
		cacheable := opts.UseCache && !node.Persistent
		for _, dep := range node.DependencyIDs {
			key, ok := keys[dep]
			if !ok {
				cacheable = false
				break
			}
			upstream = append(upstream, key)
		}
		go s.runNode(ctx, node, upstream, cacheable, msgs, loopDone)
	}

	for terminal < d.Len() {
		// Admit everything admissible before blocking on a message.
		progressed := true
		for progressed {
			progressed = false
			for i := 0; i < len(ready); {
				id := ready[i]
				if blamed, blocked := blockedBy(id); blocked {
					ready = append(ready[:i], ready[i+1:]...)
					skip(id, fmt.Sprintf("dependency %s did not succeed", blamed))
					progressed = true
					continue
				}
				if stopping {
					ready = append(ready[:i], ready[i+1:]...)
					skip(id, "not started: run aborted after failure")
					progressed = true
					continue
				}
				if !sem.TryAcquire(1) {
					i++
					continue
				}
				ready = append(ready[:i], ready[i+1:]...)
				admit(id)
				progressed = true
			}
		}
		if terminal >= d.Len() {
			break
		}

		m := <-msgs
		switch m.kind {
		case msgOutput:
			s.Events.Emit(events.Event{Type: events.TypeOutput, ID: m.id, Line: m.line, Stderr: m.stderr})
		case msgDone:
			sem.Release(1)
			if m.key != "" {
				keys[m.id] = m.key
			}
			switch m.status {
			case model.StatusSuccess:
				s.Events.Emit(events.Event{Type: events.TypeCompleted, ID: m.id, Duration: m.duration})
			case model.StatusCacheHit:
				s.Events.Emit(events.Event{Type: events.TypeCacheHit, ID: m.id, Duration: m.duration, Cached: true})
			case model.StatusFailed:
				s.Events.Emit(events.Event{Type: events.TypeFailed, ID: m.id, Reason: m.reason, Duration: m.duration})
				if !opts.ContinueOnError {
					stopping = true
				}
			}
			results = append(results, model.TaskResult{ID: m.id, Status: m.status, Reason: m.reason, Duration: m.duration})
			settle(m.id, m.status)
		}
	}

	s.Events.Emit(events.Event{Type: events.TypeAllCompleted})
	return results, nil
}

// dryRun reports the planned ordering wave by wave with zero spawns and
// zero cache writes.
func (s *Scheduler) dryRun(d *dag.TaskDag) []model.TaskResult {
	var results []model.TaskResult
	for i, wave := range d.Waves() {
		s.Events.Emit(events.Event{Type: events.TypeWaveStarted, Wave: i})
		for _, id := range wave {
			s.Events.Emit(events.Event{Type: events.TypeStarted, ID: id})
			s.Events.Emit(events.Event{Type: events.TypeSkipped, ID: id, Reason: "dry run"})
			results = append(results, model.TaskResult{ID: id, Status: model.StatusSkipped, Reason: "dry run"})
		}
	}
	s.Events.Emit(events.Event{Type: events.TypeAllCompleted})
	return results
}

// runNode resolves one node via cache or command execution and reports the
// outcome. It runs on a worker goroutine; every channel send is guarded by
// loopDone so a still-streaming persistent process cannot block after the
// scheduling loop has returned.
func (s *Scheduler) runNode(ctx context.Context, node *model.TaskNode, upstreamKeys []string, cacheable bool, out chan<- message, loopDone <-chan struct{}) {
	start := time.Now()
	send := func(m message) {
		select {
		case out <- m:
		case <-loopDone:
		}
	}
	finish := func(st model.Status, reason, key string) {
		send(message{kind: msgDone, id: node.ID, status: st, reason: reason, key: key, duration: time.Since(start)})
	}

	key := ""
	if cacheable {
		k, err := s.Fingerprint.Fingerprint(node, upstreamKeys)
		if err != nil {
			s.Log.Warnf("%s: fingerprint failed, running uncached: %v", node.ID, err)
		} else {
			key = k
			entry, ok, err := s.Store.Lookup(key)
			if err != nil {
				s.Log.Warnf("%s: cache lookup degraded to miss: %v", node.ID, err)
			}
			if ok {
				if err := s.Store.Restore(entry, s.Root); err != nil {
					s.Log.Warnf("%s: cache restore failed, re-running: %v", node.ID, err)
				} else {
					finish(model.StatusCacheHit, "", key)
					return
				}
			}
		}
	}

	cmd := exec.Command{
		Script: node.Command,
		Dir:    filepath.Join(s.Root, filepath.FromSlash(node.Dir)),
		Env:    node.Env,
	}

	if node.Persistent {
		s.runPersistent(ctx, node, cmd, send, finish)
		return
	}

	onOutput := func(line string, stderr bool) {
		send(message{kind: msgOutput, id: node.ID, line: line, stderr: stderr})
	}

	op := func() error {
		r, err := s.Runner.Run(ctx, cmd, onOutput)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("spawn failure: %w", err))
		}
		if r.ExitCode == 0 {
			return nil
		}
		err = fmt.Errorf("exit status %d", r.ExitCode)
		if s.retryable(r.ExitCode) {
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(op, s.newBackOff(ctx)); err != nil {
		finish(model.StatusFailed, err.Error(), "")
		return
	}

	if key != "" {
		if err := s.Store.Save(key, s.Root, node.Outputs); err != nil {
			s.Log.Warnf("%s: cache store failed: %v", node.ID, err)
		}
	}
	finish(model.StatusSuccess, "", key)
}

// runPersistent treats startup as the completion point: dependents are
// released once the process produces its first output line. An early exit
// before any output is judged by its exit code instead.
func (s *Scheduler) runPersistent(ctx context.Context, node *model.TaskNode, cmd exec.Command, send func(message), finish func(model.Status, string, string)) {
	started := make(chan struct{}, 1)
	onOutput := func(line string, stderr bool) {
		select {
		case started <- struct{}{}:
		default:
		}
		send(message{kind: msgOutput, id: node.ID, line: line, stderr: stderr})
	}

	type outcome struct {
		res exec.Result
		err error
	}
	exited := make(chan outcome, 1)
	go func() {
		r, err := s.Runner.Run(ctx, cmd, onOutput)
		exited <- outcome{res: r, err: err}
	}()

	select {
	case <-started:
		finish(model.StatusSuccess, "persistent task running", "")
	case o := <-exited:
		if o.err != nil {
			finish(model.StatusFailed, fmt.Sprintf("spawn failure: %v", o.err), "")
			return
		}
		if o.res.ExitCode != 0 {
			finish(model.StatusFailed, fmt.Sprintf("exit status %d", o.res.ExitCode), "")
			return
		}
		finish(model.StatusSuccess, "", "")
	}
}

func (s *Scheduler) retryable(exitCode int) bool {
	if !s.Retry.Enabled {
		return false
	}
	for _, c := range s.Retry.RetryableExitCodes {
		if c == exitCode {
			return true
		}
	}
	return false
}

func (s *Scheduler) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if s.Retry.InitialBackoffMs > 0 {
		b.InitialInterval = time.Duration(s.Retry.InitialBackoffMs) * time.Millisecond
	}
	if s.Retry.MaxBackoffMs > 0 {
		b.MaxInterval = time.Duration(s.Retry.MaxBackoffMs) * time.Millisecond
	}
	retries := uint64(0)
	if s.Retry.Enabled && s.Retry.MaxRetries > 0 {
		retries = uint64(s.Retry.MaxRetries)
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}
