package model

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCacheHit Status = "cache_hit"
	StatusSkipped  Status = "skipped"
)

// Terminal reports whether the status is a final state for a task node.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCacheHit, StatusSkipped:
		return true
	}
	return false
}

// Satisfied reports whether a dependency in this status allows its
// dependents to start.
func (s Status) Satisfied() bool {
	return s == StatusSuccess || s == StatusCacheHit
}

// TaskResult is the terminal outcome of one task node within a single run.
type TaskResult struct {
	ID       TaskID
	Status   Status
	// Reason carries the failure cause (exit code, spawn error) or the skip
	// provenance; empty on success.
	Reason   string
	Duration time.Duration
}

// RunSummary aggregates per-node results for the JSON output mode.
type RunSummary struct {
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Cached    int              `json:"cached"`
	Skipped   int              `json:"skipped"`
	Tasks     []RunSummaryTask `json:"tasks"`
}

type RunSummaryTask struct {
	ID         string `json:"id"`
	Status     Status `json:"status"`
	DurationMS int64  `json:"duration_ms"`
}

// Summarize builds a RunSummary from raw results, preserving their order.
func Summarize(results []TaskResult) RunSummary {
	s := RunSummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			s.Succeeded++
		case StatusFailed:
			s.Failed++
		case StatusCacheHit:
			s.Cached++
		case StatusSkipped:
			s.Skipped++
		}
		s.Tasks = append(s.Tasks, RunSummaryTask{
			ID:         r.ID.String(),
			Status:     r.Status,
			DurationMS: r.Duration.Milliseconds(),
		})
	}
	return s
}
