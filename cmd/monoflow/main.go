package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hsawada/monoflow/internal/cache"
	"github.com/hsawada/monoflow/internal/change"
	"github.com/hsawada/monoflow/internal/dag"
	"github.com/hsawada/monoflow/internal/events"
	"github.com/hsawada/monoflow/internal/exec"
	"github.com/hsawada/monoflow/internal/graph"
	"github.com/hsawada/monoflow/internal/lock"
	"github.com/hsawada/monoflow/internal/logging"
	"github.com/hsawada/monoflow/internal/model"
	"github.com/hsawada/monoflow/internal/pipeline"
	"github.com/hsawada/monoflow/internal/scheduler"
	"github.com/hsawada/monoflow/internal/watch"
	"github.com/hsawada/monoflow/internal/workspace"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runRun(os.Args[2:])
	case "graph":
		runGraph(os.Args[2:])
	case "affected":
		runAffected(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "version":
		fmt.Printf("monoflow %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`monoflow - monorepo task orchestrator

Usage:
  monoflow run <task...> [options]    Run tasks across workspace packages
  monoflow graph [task...]            Print package order and planned task waves
  monoflow affected --base <ref>      List packages affected by a git diff
  monoflow watch <task...> [options]  Re-run tasks on file changes
  monoflow version                    Print version

Run options:
  --affected            Restrict to packages affected since --base
  --base <ref>          Git base ref for --affected (default origin/main)
  --head <ref>          Git head ref (default: working tree)
  --filter <pkg>        Restrict to a package (repeatable)
  --concurrency <n>     Max tasks in flight (default: from monoflow.yaml)
  --dry-run             Plan only; execute nothing
  --continue-on-error   Keep independent branches running after a failure
  --no-cache            Disable cache lookups and writes
  --json                Print a JSON summary instead of text
  --verbose             Echo task output lines
  --root <dir>          Workspace root (default .)`)
}

// stringSlice is a repeatable string flag.
type stringSlice []string

func (s *stringSlice) String() string { return strings.Join(*s, ",") }
func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// splitTasks separates leading positional task names from flags so both
// "run build --affected" and "run --affected build" parse.
func splitTasks(args []string) (tasks, rest []string) {
	i := 0
	for i < len(args) && !strings.HasPrefix(args[i], "-") {
		tasks = append(tasks, args[i])
		i++
	}
	return tasks, args[i:]
}

type runFlags struct {
	affected        bool
	base, head      string
	filter          stringSlice
	concurrency     int
	dryRun          bool
	continueOnError bool
	noCache         bool
	jsonOut         bool
	verbose         bool
	root            string
}

func (f *runFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&f.affected, "affected", false, "restrict to affected packages")
	fs.StringVar(&f.base, "base", "origin/main", "git base ref")
	fs.StringVar(&f.head, "head", "", "git head ref")
	fs.Var(&f.filter, "filter", "restrict to package (repeatable)")
	fs.IntVar(&f.concurrency, "concurrency", 0, "max tasks in flight")
	fs.BoolVar(&f.dryRun, "dry-run", false, "plan only")
	fs.BoolVar(&f.continueOnError, "continue-on-error", false, "keep independent branches running")
	fs.BoolVar(&f.noCache, "no-cache", false, "disable the task cache")
	fs.BoolVar(&f.jsonOut, "json", false, "JSON summary output")
	fs.BoolVar(&f.verbose, "verbose", false, "echo task output")
	fs.StringVar(&f.root, "root", ".", "workspace root")
}

// loaded bundles everything a subcommand needs from the workspace.
type loaded struct {
	root     string
	cfg      model.Config
	packages []model.Package
	graph    *graph.DependencyGraph
	log      *logging.Logger
}

func loadWorkspace(root string) (*loaded, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	cfg, err := workspace.LoadConfig(abs)
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.Logging.Level))

	if err := pipeline.Validate(cfg.Pipeline); err != nil {
		var ve *pipeline.ValidationErrors
		if errors.As(err, &ve) {
			fmt.Fprint(os.Stderr, ve.FormatStderr())
		}
		return nil, fmt.Errorf("invalid pipeline configuration")
	}

	packages, err := workspace.Discover(abs, cfg, nil)
	if err != nil {
		return nil, err
	}
	g, unresolved := graph.Build(packages)
	for name, deps := range unresolved {
		logger.Debugf("package %s: external deps ignored: %v", name, deps)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &loaded{root: abs, cfg: cfg, packages: packages, graph: g, log: logger}, nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// selectPackages applies --filter and --affected narrowing, in discovery
// order. An empty result means there is nothing to do, not an error.
func selectPackages(ctx context.Context, ws *loaded, f *runFlags) ([]string, error) {
	selected := ws.graph.Names()

	if f.affected {
		differ := &change.GitDiffer{Root: ws.root}
		files, err := differ.ChangedFiles(ctx, f.base, f.head)
		if err != nil {
			return nil, err
		}
		cs := change.Detect(ws.packages, files, ws.graph)
		selected = cs.AffectedPackages
	}

	if len(f.filter) > 0 {
		want := make(map[string]bool, len(f.filter))
		for _, name := range f.filter {
			if _, ok := ws.graph.Package(name); !ok {
				return nil, fmt.Errorf("unknown package %q in --filter", name)
			}
			want[name] = true
		}
		var kept []string
		for _, name := range selected {
			if want[name] {
				kept = append(kept, name)
			}
		}
		selected = kept
	}
	return selected, nil
}

func newScheduler(ws *loaded, reg *events.Registry) *scheduler.Scheduler {
	return &scheduler.Scheduler{
		Root:        ws.root,
		Runner:      exec.ShellRunner{},
		Store:       cache.NewStore(filepath.Join(ws.root, ws.cfg.Cache.Dir)),
		Fingerprint: cache.NewFingerprinter(ws.root),
		Events:      reg,
		Log:         ws.log,
		Retry:       ws.cfg.Retry,
	}
}

func runRun(args []string) {
	tasks, rest := splitTasks(args)
	f := &runFlags{}
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	f.register(fs)
	if err := fs.Parse(rest); err != nil {
		os.Exit(1)
	}
	tasks = append(tasks, fs.Args()...)
	if len(tasks) == 0 {
		fmt.Fprintln(os.Stderr, "usage: monoflow run <task...> [options]")
		os.Exit(1)
	}

	ws, err := loadWorkspace(f.root)
	if err != nil {
		fatal(err)
	}

	ctx := signalContext()
	selected, err := selectPackages(ctx, ws, f)
	if err != nil {
		fatal(err)
	}
	if len(selected) == 0 {
		fmt.Println("nothing to do")
		return
	}

	d, err := dag.Build(ws.graph, ws.cfg.Pipeline, tasks, selected)
	if err != nil {
		fatal(err)
	}

	if f.dryRun {
		printWaves(d)
	}

	collector := events.NewCollector()
	reg := events.NewRegistry(collector)
	if !f.jsonOut {
		reg.Register(events.NewConsoleReporter(os.Stdout, f.verbose))
	}

	s := newScheduler(ws, reg)
	opts := scheduler.Options{
		Concurrency:     pick(f.concurrency, ws.cfg.Concurrency),
		ContinueOnError: f.continueOnError,
		UseCache:        !f.noCache && !ws.cfg.Cache.Disabled,
		DryRun:          f.dryRun,
	}
	results, err := s.Execute(ctx, d, opts)
	if err != nil {
		fatal(err)
	}

	summary := model.Summarize(results)
	if f.jsonOut {
		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			fatal(err)
		}
		fmt.Println(string(out))
	} else if !f.dryRun {
		fmt.Printf("%d total, %d succeeded, %d cached, %d failed, %d skipped\n",
			summary.Total, summary.Succeeded, summary.Cached, summary.Failed, summary.Skipped)
	}

	if summary.Failed > 0 {
		os.Exit(1)
	}
}

func runGraph(args []string) {
	tasks, rest := splitTasks(args)
	f := &runFlags{}
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	f.register(fs)
	if err := fs.Parse(rest); err != nil {
		os.Exit(1)
	}
	tasks = append(tasks, fs.Args()...)

	ws, err := loadWorkspace(f.root)
	if err != nil {
		fatal(err)
	}

	fmt.Println("packages (topological):")
	for _, name := range ws.graph.Sorted() {
		deps := ws.graph.Dependencies(name)
		if len(deps) == 0 {
			fmt.Printf("  %s\n", name)
		} else {
			fmt.Printf("  %s <- %s\n", name, strings.Join(deps, ", "))
		}
	}

	if len(tasks) == 0 {
		return
	}
	d, err := dag.Build(ws.graph, ws.cfg.Pipeline, tasks, ws.graph.Names())
	if err != nil {
		fatal(err)
	}
	printWaves(d)
}

func printWaves(d *dag.TaskDag) {
	fmt.Println("planned waves:")
	for i, wave := range d.Waves() {
		ids := make([]string, 0, len(wave))
		for _, id := range wave {
			ids = append(ids, id.String())
		}
		fmt.Printf("  %d: %s\n", i, strings.Join(ids, ", "))
	}
}

func runAffected(args []string) {
	_, rest := splitTasks(args)
	f := &runFlags{}
	fs := flag.NewFlagSet("affected", flag.ExitOnError)
	f.register(fs)
	if err := fs.Parse(rest); err != nil {
		os.Exit(1)
	}

	ws, err := loadWorkspace(f.root)
	if err != nil {
		fatal(err)
	}

	ctx := signalContext()
	differ := &change.GitDiffer{Root: ws.root}
	files, err := differ.ChangedFiles(ctx, f.base, f.head)
	if err != nil {
		fatal(err)
	}
	cs := change.Detect(ws.packages, files, ws.graph)
	for _, name := range cs.AffectedPackages {
		fmt.Println(name)
	}
}

func runWatch(args []string) {
	tasks, rest := splitTasks(args)
	f := &runFlags{}
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	f.register(fs)
	if err := fs.Parse(rest); err != nil {
		os.Exit(1)
	}
	tasks = append(tasks, fs.Args()...)
	if len(tasks) == 0 {
		fmt.Fprintln(os.Stderr, "usage: monoflow watch <task...> [options]")
		os.Exit(1)
	}

	ws, err := loadWorkspace(f.root)
	if err != nil {
		fatal(err)
	}

	stateDir := filepath.Join(ws.root, ".monoflow")
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		fatal(err)
	}
	fl := lock.NewFileLock(filepath.Join(stateDir, "watch.lock"))
	if err := fl.TryLock(); err != nil {
		fatal(err)
	}
	defer fl.Unlock()

	ctx := signalContext()
	run := func(ctx context.Context, affected []string) {
		d, err := dag.Build(ws.graph, ws.cfg.Pipeline, tasks, affected)
		if err != nil {
			ws.log.Errorf("build task dag: %v", err)
			return
		}
		reg := events.NewRegistry(events.NewConsoleReporter(os.Stdout, f.verbose))
		s := newScheduler(ws, reg)
		_, err = s.Execute(ctx, d, scheduler.Options{
			Concurrency:     pick(f.concurrency, ws.cfg.Concurrency),
			ContinueOnError: true,
			UseCache:        !f.noCache && !ws.cfg.Cache.Disabled,
		})
		if err != nil {
			ws.log.Errorf("run: %v", err)
		}
	}

	w := &watch.Watcher{
		Root:     ws.root,
		Packages: ws.packages,
		Graph:    ws.graph,
		Debounce: time.Duration(ws.cfg.Watch.DebounceMs) * time.Millisecond,
		Log:      ws.log,
		Run:      run,
	}

	// Initial full run before settling into watch.
	run(ctx, ws.graph.Names())
	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}

func pick(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	return ctx
}
