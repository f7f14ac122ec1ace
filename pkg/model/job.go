package model

import (
	"fmt"
	"strconv"
	"time"
)

// JobState represents the lifecycle state of a Job.
type JobState string

const (
	JobStateQueued    JobState = "QUEUED"
	JobStateRunning   JobState = "RUNNING"
	JobStateRetrying  JobState = "RETRYING"
	JobStateCompleted JobState = "COMPLETED"
	JobStateFailed    JobState = "FAILED"
)

// String returns the string representation of the job state.
func (s JobState) String() string {
	return string(s)
}

// IsTerminal returns true if the job is in a final state.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// ValidJobTransitions defines the allowed state transitions for Jobs.
// RETRYING covers the backoff window between a failed attempt and
// re-entry into the queue.
var ValidJobTransitions = map[JobState][]JobState{
	JobStateQueued:   {JobStateRunning},
	JobStateRunning:  {JobStateCompleted, JobStateRetrying, JobStateFailed},
	JobStateRetrying: {JobStateQueued},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s JobState) CanTransitionTo(next JobState) bool {
	for _, allowed := range ValidJobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Priority levels. Lower value is served first.
const (
	PriorityHigh   = 0
	PriorityNormal = 1
	PriorityLow    = 2
)

// ParsePriority converts a named priority level ("high", "normal",
// "low") or a numeric string to a priority value.
func ParsePriority(s string) (int, error) {
	switch s {
	case "high":
		return PriorityHigh, nil
	case "normal", "":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid priority %q: want high, normal, low, or an integer", s)
	}
	return n, nil
}

// ListOptions controls paging and filtering of job listings.
type ListOptions struct {
	Limit  int
	Offset int

	// State and Device filter the listing when non-empty.
	State  JobState
	Device string
}

// Clamp normalizes paging values to safe bounds.
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// Job describes one submitted unit of work: a compiled instruction
// stream bound to a device, with a priority and a retry budget.
// Attempts is mutated only by the worker that currently owns the job.
type Job struct {
	ID         string   `json:"id"`
	Device     string   `json:"device"`
	Priority   int      `json:"priority"`
	State      JobState `json:"state"`
	Program    string   `json:"program,omitempty"`
	MaxRetries int      `json:"max_retries"`
	Attempts   int      `json:"attempts"`

	// Circuit metrics captured at submission time, before execution.
	GateCount int `json:"gate_count"`
	Depth     int `json:"depth"`
	Qubits    int `json:"qubits"`
	Shots     int `json:"shots"`

	// Source identifies the circuit that produced this job (name or
	// input path), for listings and logs.
	Source string `json:"source,omitempty"`

	Error         string `json:"error,omitempty"`
	ResultSummary string `json:"result_summary,omitempty"`
	ElapsedMS     int64  `json:"elapsed_ms,omitempty"`

	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
