// Package exec is the command-execution collaborator: it spawns one shell
// command per task node and streams its output lines back to the caller.
package exec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
)

// OutputFunc receives one output line as the process streams; stderr marks
// the originating stream.
type OutputFunc func(line string, stderr bool)

// Command describes one process invocation.
type Command struct {
	// Script is run through "sh -c" so command templates may use shell
	// syntax.
	Script string
	// Dir is the working directory.
	Dir string
	// Env is appended to the parent environment.
	Env map[string]string
}

// Result is the observed process outcome. A non-zero exit code is a task
// failure, not an infrastructure error.
type Result struct {
	ExitCode int
}

// Runner spawns commands. Implementations must be safe for concurrent use:
// the scheduler calls Run from multiple workers.
type Runner interface {
	Run(ctx context.Context, cmd Command, onOutput OutputFunc) (Result, error)
}

// ShellRunner executes commands with the system shell.
type ShellRunner struct{}

func (ShellRunner) Run(ctx context.Context, command Command, onOutput OutputFunc) (Result, error) {
	if command.Script == "" {
		return Result{}, fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command.Script)
	cmd.Dir = command.Dir
	cmd.Env = mergedEnv(command.Env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("spawn %q: %w", command.Script, err)
	}

	var wg sync.WaitGroup
	stream := func(r *bufio.Scanner, isStderr bool) {
		defer wg.Done()
		for r.Scan() {
			if onOutput != nil {
				onOutput(r.Text(), isStderr)
			}
		}
	}
	wg.Add(2)
	go stream(bufio.NewScanner(stdout), false)
	go stream(bufio.NewScanner(stderr), true)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{ExitCode: exitErr.ExitCode()}, nil
		}
		return Result{}, fmt.Errorf("wait %q: %w", command.Script, err)
	}
	return Result{ExitCode: 0}, nil
}

func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
