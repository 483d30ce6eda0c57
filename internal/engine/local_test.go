package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mtzanidakis/fedpipe/internal/compiler"
	"github.com/mtzanidakis/fedpipe/internal/component"
	"github.com/mtzanidakis/fedpipe/internal/pipeline"
)

// compileJob compiles reader -> dataio -> trainer for an initiator and a
// participant party.
func compileJob(t *testing.T) *compiler.Job {
	t.Helper()
	reg := component.Default()
	g := pipeline.New()
	if err := g.SetRoleBinding("initiator", 1,
		pipeline.RoleParties{Role: "initiator", Parties: []int64{1}},
		pipeline.RoleParties{Role: "participant", Parties: []int64{2}},
	); err != nil {
		t.Fatal(err)
	}

	add := func(name, kind string, params component.Params, bindings ...pipeline.Binding) {
		t.Helper()
		c, err := reg.New(name, kind, params)
		if err != nil {
			t.Fatal(err)
		}
		if err := g.AddComponent(c, bindings...); err != nil {
			t.Fatal(err)
		}
	}
	add("reader", component.KindReader, component.Params{"table": map[string]any{"name": "t"}})
	add("dataio", component.KindDataIO, nil, pipeline.Bind("data", "reader", "data"))
	add("trainer", component.KindHomoLR, component.Params{"max_iter": 3}, pipeline.Bind("train_data", "dataio", "data"))

	job, err := compiler.Compile(g)
	if err != nil {
		t.Fatal(err)
	}
	return job
}

func request(t *testing.T, job *compiler.Job, backend, runMode string) Request {
	t.Helper()
	runtime, err := job.WithExecution(backend, runMode)
	if err != nil {
		t.Fatal(err)
	}
	return Request{Structure: job.Structure(), Runtime: runtime, Backend: backend, RunMode: runMode}
}

func TestLocalRunsTiersInOrder(t *testing.T) {
	ctx := context.Background()
	eng := NewLocal()
	id, err := eng.Submit(ctx, request(t, compileJob(t), BackendLocal, "sync"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id == "" {
		t.Fatal("expected job id")
	}

	// One poll to start, then one per tier.
	wantDone := [][]string{nil, {"reader"}, {"reader", "dataio"}, {"reader", "dataio", "trainer"}}
	for i, done := range wantDone {
		st, err := eng.Status(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if len(st.Summaries) != len(done) {
			t.Fatalf("poll %d: expected %d summaries, got %d", i+1, len(done), len(st.Summaries))
		}
		for _, name := range done {
			if _, ok := st.Summaries[name]; !ok {
				t.Errorf("poll %d: missing summary for %s", i+1, name)
			}
		}
		if i < len(wantDone)-1 && st.State != StateRunning {
			t.Errorf("poll %d: expected running, got %s", i+1, st.State)
		}
	}

	st, _ := eng.Status(ctx, id)
	if st.State != StateSucceeded {
		t.Fatalf("expected succeeded, got %s", st.State)
	}

	var summary stageSummary
	if err := json.Unmarshal(st.Summaries["trainer"], &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Kind != component.KindHomoLR || summary.Tier != 2 {
		t.Errorf("unexpected trainer summary %+v", summary)
	}
	if len(summary.Upstream) != 1 || summary.Upstream[0] != "dataio.data" {
		t.Errorf("expected upstream dataio.data, got %v", summary.Upstream)
	}
	if len(summary.Parties) != 2 {
		t.Errorf("expected one entry per party, got %d", len(summary.Parties))
	}
}

func TestLocalRejects(t *testing.T) {
	ctx := context.Background()
	job := compileJob(t)

	cases := []struct {
		name string
		eng  *Local
		req  Request
	}{
		{"unknown backend", NewLocal(), request(t, job, "eggroll", "sync")},
		{"empty run mode", NewLocal(), request(t, job, BackendLocal, "")},
		{"unreachable party", NewLocal(WithUnreachableParty(2)), request(t, job, BackendLocal, "sync")},
		{"malformed structure", NewLocal(), Request{Structure: []byte("{"), Runtime: job.Runtime(), Backend: BackendLocal, RunMode: "sync"}},
		{"selection mismatch", NewLocal(), Request{Structure: job.Structure(), Runtime: job.Runtime(), Backend: BackendLocal, RunMode: "sync"}},
	}
	for _, tc := range cases {
		if _, err := tc.eng.Submit(ctx, tc.req); !errors.Is(err, ErrRejected) {
			t.Errorf("%s: expected ErrRejected, got %v", tc.name, err)
		}
	}

	eng := NewLocal(WithBackends("local", "eggroll"))
	if _, err := eng.Submit(ctx, request(t, job, "eggroll", "sync")); err != nil {
		t.Errorf("expected configured backend to be accepted, got %v", err)
	}
}

func TestLocalFailure(t *testing.T) {
	ctx := context.Background()
	eng := NewLocal(WithFailure("trainer", "diverged"))
	id, err := eng.Submit(ctx, request(t, compileJob(t), BackendLocal, "sync"))
	if err != nil {
		t.Fatal(err)
	}

	var st *Status
	for i := 0; i < 10; i++ {
		st, err = eng.Status(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if st.State.Terminal() {
			break
		}
	}
	if st.State != StateFailed {
		t.Fatalf("expected failed, got %s", st.State)
	}
	var diag map[string]any
	if err := json.Unmarshal(st.Diagnostic, &diag); err != nil {
		t.Fatal(err)
	}
	if diag["component"] != "trainer" || diag["reason"] != "diverged" {
		t.Errorf("unexpected diagnostic %v", diag)
	}
	if len(st.Summaries) != 2 {
		t.Errorf("expected partial summaries of reader and dataio, got %d", len(st.Summaries))
	}
}

func TestLocalCancel(t *testing.T) {
	ctx := context.Background()
	eng := NewLocal()
	id, err := eng.Submit(ctx, request(t, compileJob(t), BackendLocal, "sync"))
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Cancel(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := eng.Cancel(ctx, id); err != nil {
		t.Errorf("second cancel must be a no-op, got %v", err)
	}
	st, _ := eng.Status(ctx, id)
	if st.State != StateCanceled {
		t.Errorf("expected canceled, got %s", st.State)
	}

	if err := eng.Cancel(ctx, "nope"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("expected ErrUnknownJob, got %v", err)
	}
	if _, err := eng.Status(ctx, "nope"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("expected ErrUnknownJob, got %v", err)
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StatePending, StateRunning} {
		if s.Terminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
	for _, s := range []State{StateSucceeded, StateFailed, StateCanceled} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}
