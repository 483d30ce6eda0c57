package runner

import (
	"encoding/json"
	"sync"

	"github.com/mtzanidakis/fedpipe/internal/compiler"
	"github.com/mtzanidakis/fedpipe/internal/engine"
)

type State string

const (
	StateCreated   State = "created"
	StateSubmitted State = "submitted"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCanceled
}

// transitions lists the states reachable from each non-terminal state.
var transitions = map[State][]State{
	StateCreated:   {StateSubmitted},
	StateSubmitted: {StateRunning, StateSucceeded, StateFailed, StateCanceled},
	StateRunning:   {StateSucceeded, StateFailed, StateCanceled},
}

func (s State) canMoveTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Run is one submission of a compiled job. It is safe to read from several
// goroutines; only the coordinator mutates it.
type Run struct {
	job     *compiler.Job
	backend string
	runMode string

	mu         sync.Mutex
	jobID      string
	state      State
	summaries  map[string]json.RawMessage
	diagnostic json.RawMessage
	polls      int
}

func newRun(job *compiler.Job, backend, runMode string) *Run {
	return &Run{
		job:       job,
		backend:   backend,
		runMode:   runMode,
		state:     StateCreated,
		summaries: make(map[string]json.RawMessage),
	}
}

func (r *Run) Job() *compiler.Job { return r.job }
func (r *Run) Backend() string    { return r.backend }
func (r *Run) RunMode() string    { return r.runMode }

// JobID is the identifier assigned by the engine at submission.
func (r *Run) JobID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobID
}

func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Diagnostic is the engine's failure payload, set once the run failed.
func (r *Run) Diagnostic() json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(json.RawMessage(nil), r.diagnostic...)
}

// Summaries returns the summaries reported so far. A failed run keeps the
// summaries of the stages that completed.
func (r *Run) Summaries() map[string]json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]json.RawMessage, len(r.summaries))
	for k, v := range r.summaries {
		out[k] = v
	}
	return out
}

// Polls is the number of status queries made for this run.
func (r *Run) Polls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polls
}

// moveTo applies a transition. Terminal states are sticky and staying in the
// same state is not a change.
func (r *Run) moveTo(next State) bool {
	if r.state == next || !r.state.canMoveTo(next) {
		return false
	}
	r.state = next
	return true
}

// observe folds an engine status into the run and reports whether the run
// state changed.
func (r *Run) observe(st *engine.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.polls++
	if r.state.Terminal() {
		return false
	}
	for k, v := range st.Summaries {
		r.summaries[k] = v
	}

	switch st.State {
	case engine.StateRunning:
		return r.moveTo(StateRunning)
	case engine.StateSucceeded:
		return r.moveTo(StateSucceeded)
	case engine.StateFailed:
		r.diagnostic = st.Diagnostic
		if len(r.diagnostic) == 0 {
			r.diagnostic = json.RawMessage(`{}`)
		}
		return r.moveTo(StateFailed)
	case engine.StateCanceled:
		return r.moveTo(StateCanceled)
	default:
		return false
	}
}

func (r *Run) countPoll() {
	r.mu.Lock()
	r.polls++
	r.mu.Unlock()
}
