package events

import (
	"fmt"
	"io"
	"sync"
)

// ConsoleReporter prints one line per task terminal state: status glyph,
// id, elapsed time, and a cache annotation on hits.
type ConsoleReporter struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

// NewConsoleReporter writes human-readable progress to w. With verbose set,
// task output lines are echoed as they stream.
func NewConsoleReporter(w io.Writer, verbose bool) *ConsoleReporter {
	return &ConsoleReporter{w: w, verbose: verbose}
}

func (r *ConsoleReporter) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Type {
	case TypeWaveStarted:
		fmt.Fprintf(r.w, "— wave %d —\n", e.Wave)
	case TypeOutput:
		if r.verbose {
			fmt.Fprintf(r.w, "  %s | %s\n", e.ID, e.Line)
		}
	case TypeCompleted:
		fmt.Fprintf(r.w, "✔ %s (%s)\n", e.ID, e.Duration.Round(timePrecision))
	case TypeCacheHit:
		fmt.Fprintf(r.w, "✔ %s (%s) [cached]\n", e.ID, e.Duration.Round(timePrecision))
	case TypeFailed:
		fmt.Fprintf(r.w, "✖ %s (%s): %s\n", e.ID, e.Duration.Round(timePrecision), e.Reason)
	case TypeSkipped:
		fmt.Fprintf(r.w, "- %s skipped: %s\n", e.ID, e.Reason)
	case TypeAllCompleted:
		fmt.Fprintln(r.w, "done")
	}
}
