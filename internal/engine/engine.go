// Package engine defines the execution backend a compiled job is submitted
// to, an in-process implementation for the "local" backend, and a NATS
// request/reply transport that exposes any engine to remote coordinators.
package engine

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrRejected is returned when an engine refuses a job outright.
	ErrRejected = errors.New("job rejected")
	// ErrUnknownJob is returned for a job ID the engine never issued.
	ErrUnknownJob = errors.New("unknown job")
)

type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// Terminal reports whether no further transitions can follow s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCanceled
}

// Request is one job submission. Runtime already carries the execution
// selection; Backend and RunMode repeat it for engines that route on it
// without decoding the artifact.
type Request struct {
	Structure json.RawMessage `json:"structure"`
	Runtime   json.RawMessage `json:"runtime"`
	Backend   string          `json:"backend"`
	RunMode   string          `json:"run_mode"`
}

// Status is the engine's view of a job. Summaries are filled per component
// as stages complete; Diagnostic is set once the job failed.
type Status struct {
	JobID      string                     `json:"job_id"`
	State      State                      `json:"state"`
	Summaries  map[string]json.RawMessage `json:"summaries,omitempty"`
	Diagnostic json.RawMessage            `json:"diagnostic,omitempty"`
}

// Engine executes compiled jobs.
type Engine interface {
	Submit(ctx context.Context, req Request) (string, error)
	Status(ctx context.Context, jobID string) (*Status, error)
	Cancel(ctx context.Context, jobID string) error
}
