// Package events defines the per-run observation stream emitted by the
// scheduler and the reporter sinks consuming it.
package events

import (
	"time"

	"github.com/hsawada/monoflow/internal/model"
)

type Type string

const (
	TypeStarted      Type = "started"
	TypeOutput       Type = "output"
	TypeCompleted    Type = "completed"
	TypeFailed       Type = "failed"
	TypeSkipped      Type = "skipped"
	TypeCacheHit     Type = "cache_hit"
	TypeWaveStarted  Type = "wave_started"
	TypeAllCompleted Type = "all_completed"
)

// Event is one observation in the run stream. The stream is append-only and
// never persisted; reporters consume it live.
type Event struct {
	Type      Type
	Timestamp time.Time

	// ID is set on per-task events.
	ID model.TaskID
	// Line carries one stdout/stderr line on Output events.
	Line   string
	Stderr bool
	// Reason carries the failure or skip cause.
	Reason string
	// Duration is set on terminal per-task events.
	Duration time.Duration
	// Wave is set on WaveStarted events.
	Wave int
	// Cached marks terminal events satisfied from cache.
	Cached bool
}

// Reporter is a push sink for run events.
type Reporter interface {
	Notify(Event)
}

// Registry broadcasts each event to every registered reporter. Emission is
// single-producer: the scheduler calls Emit from one goroutine, so each
// reporter observes events in emission order.
type Registry struct {
	reporters []Reporter
}

func NewRegistry(reporters ...Reporter) *Registry {
	return &Registry{reporters: reporters}
}

func (r *Registry) Register(rep Reporter) {
	r.reporters = append(r.reporters, rep)
}

func (r *Registry) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	for _, rep := range r.reporters {
		rep.Notify(e)
	}
}
