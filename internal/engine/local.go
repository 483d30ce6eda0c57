package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/mtzanidakis/fedpipe/internal/compiler"
	"github.com/mtzanidakis/fedpipe/internal/component"
)

// BackendLocal is the backend selector served by Local.
const BackendLocal = "local"

// Local runs jobs in-process. It performs no computation: each Status call
// completes the next execution tier and records an opaque summary for every
// component of that tier, so stages finish in DAG order.
type Local struct {
	registry    *component.Registry
	backends    map[string]bool
	failures    map[string]string // component -> reason
	unreachable map[int64]bool

	mu   sync.Mutex
	jobs map[string]*localJob
}

type localJob struct {
	id        string
	structure *compiler.Structure
	runtime   *compiler.Runtime
	job       *compiler.Job

	state      State
	next       int // index of the next tier to run
	summaries  map[string]json.RawMessage
	diagnostic json.RawMessage
}

type LocalOption func(*Local)

// WithBackends sets the backend selectors the engine accepts.
func WithBackends(names ...string) LocalOption {
	return func(l *Local) {
		l.backends = make(map[string]bool, len(names))
		for _, n := range names {
			l.backends[n] = true
		}
	}
}

// WithFailure makes component fail with reason when its tier runs.
func WithFailure(component, reason string) LocalOption {
	return func(l *Local) { l.failures[component] = reason }
}

// WithUnreachableParty rejects every job that binds party.
func WithUnreachableParty(party int64) LocalOption {
	return func(l *Local) { l.unreachable[party] = true }
}

// WithRegistry sets the kinds used to validate submitted structures.
func WithRegistry(reg *component.Registry) LocalOption {
	return func(l *Local) { l.registry = reg }
}

func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		registry:    component.Default(),
		backends:    map[string]bool{BackendLocal: true},
		failures:    make(map[string]string),
		unreachable: make(map[int64]bool),
		jobs:        make(map[string]*localJob),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Local) Submit(_ context.Context, req Request) (string, error) {
	if !l.backends[req.Backend] {
		return "", fmt.Errorf("%w: unsupported backend %q", ErrRejected, req.Backend)
	}
	if req.RunMode == "" {
		return "", fmt.Errorf("%w: empty run mode", ErrRejected)
	}

	s, err := compiler.DecodeStructure(req.Structure)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}
	r, err := compiler.DecodeRuntime(req.Runtime)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if r.Backend != req.Backend || r.RunMode != req.RunMode {
		return "", fmt.Errorf("%w: runtime selects %s/%s, request %s/%s", ErrRejected, r.Backend, r.RunMode, req.Backend, req.RunMode)
	}
	job, err := compiler.ParseJob(req.Structure, req.Runtime, l.registry)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}
	for _, rp := range r.Roles {
		for _, p := range rp.Parties {
			if l.unreachable[p] {
				return "", fmt.Errorf("%w: party %d (%s) unreachable", ErrRejected, p, rp.Role)
			}
		}
	}

	lj := &localJob{
		id:        uuid.New().String(),
		structure: s,
		runtime:   r,
		job:       job,
		state:     StatePending,
		summaries: make(map[string]json.RawMessage),
	}

	l.mu.Lock()
	l.jobs[lj.id] = lj
	l.mu.Unlock()

	slog.Info("local job accepted", "job", lj.id, "components", len(s.Components), "tiers", len(s.Tiers), "digest", job.Digest())
	return lj.id, nil
}

func (l *Local) Status(_ context.Context, jobID string) (*Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lj, ok := l.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	l.advance(lj)
	return lj.snapshot(), nil
}

func (l *Local) Cancel(_ context.Context, jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lj, ok := l.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	if lj.state.Terminal() {
		return nil
	}
	lj.state = StateCanceled
	slog.Info("local job canceled", "job", jobID, "completed_tiers", lj.next)
	return nil
}

// advance moves lj one step: pending jobs start running, running jobs
// complete one tier and succeed after the last.
func (l *Local) advance(lj *localJob) {
	switch lj.state {
	case StatePending:
		lj.state = StateRunning
		if len(lj.structure.Tiers) == 0 {
			lj.state = StateSucceeded
		}
		return
	case StateRunning:
	default:
		return
	}

	tier := lj.structure.Tiers[lj.next]
	for _, name := range tier {
		if reason, ok := l.failures[name]; ok {
			lj.state = StateFailed
			lj.diagnostic, _ = json.Marshal(map[string]any{
				"component": name,
				"tier":      lj.next,
				"reason":    reason,
			})
			slog.Warn("local job failed", "job", lj.id, "component", name, "reason", reason)
			return
		}
		summary, err := lj.summarize(name, lj.next)
		if err != nil {
			lj.state = StateFailed
			lj.diagnostic, _ = json.Marshal(map[string]any{"component": name, "tier": lj.next, "reason": err.Error()})
			return
		}
		lj.summaries[name] = summary
	}

	lj.next++
	if lj.next == len(lj.structure.Tiers) {
		lj.state = StateSucceeded
		slog.Info("local job succeeded", "job", lj.id)
	}
}

type stageSummary struct {
	Component string         `json:"component"`
	Kind      string         `json:"kind"`
	Tier      int            `json:"tier"`
	Upstream  []string       `json:"upstream,omitempty"`
	Parties   []partySummary `json:"parties"`
}

type partySummary struct {
	Role    string           `json:"role"`
	PartyID int64            `json:"party_id"`
	Params  component.Params `json:"params"`
}

func (lj *localJob) summarize(name string, tier int) (json.RawMessage, error) {
	var sc *compiler.StructureComponent
	for i := range lj.structure.Components {
		if lj.structure.Components[i].Name == name {
			sc = &lj.structure.Components[i]
			break
		}
	}
	if sc == nil {
		return nil, fmt.Errorf("component %s missing from structure", name)
	}

	s := stageSummary{Component: name, Kind: sc.Kind, Tier: tier}
	for _, in := range sc.Inputs {
		s.Upstream = append(s.Upstream, in.From.String())
	}
	for _, rp := range lj.runtime.Roles {
		for _, party := range rp.Parties {
			params, err := lj.job.Params(name, rp.Role, party)
			if err != nil {
				return nil, err
			}
			s.Parties = append(s.Parties, partySummary{Role: rp.Role, PartyID: party, Params: params})
		}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	return data, nil
}

func (lj *localJob) snapshot() *Status {
	st := &Status{
		JobID:      lj.id,
		State:      lj.state,
		Diagnostic: lj.diagnostic,
	}
	if len(lj.summaries) > 0 {
		st.Summaries = make(map[string]json.RawMessage, len(lj.summaries))
		for k, v := range lj.summaries {
			st.Summaries[k] = v
		}
	}
	return st
}
