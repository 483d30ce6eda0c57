package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mtzanidakis/fedpipe/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(config.StoreConfig{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func saveTestJob(t *testing.T, s *Store, digest string) {
	t.Helper()
	j := &Job{
		Digest:    digest,
		Structure: json.RawMessage(`{"components":[]}`),
		Runtime:   json.RawMessage(`{"roles":[]}`),
	}
	if err := s.SaveJob(j); err != nil {
		t.Fatalf("save job: %v", err)
	}
}

func TestJobCache(t *testing.T) {
	s := newTestStore(t)
	saveTestJob(t, s, "abc")

	got, err := s.GetJob("abc")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got == nil {
		t.Fatal("expected job, got nil")
	}
	if string(got.Structure) != `{"components":[]}` || string(got.Runtime) != `{"roles":[]}` {
		t.Errorf("unexpected artifacts %s / %s", got.Structure, got.Runtime)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	// Saving the same digest again keeps the first row.
	if err := s.SaveJob(&Job{Digest: "abc", Structure: json.RawMessage(`{}`), Runtime: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("resave job: %v", err)
	}
	got, _ = s.GetJob("abc")
	if string(got.Structure) != `{"components":[]}` {
		t.Errorf("expected cached structure to be kept, got %s", got.Structure)
	}

	got, err = s.GetJob("missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Error("expected nil for missing job")
	}
}

func TestRunCRUD(t *testing.T) {
	s := newTestStore(t)
	saveTestJob(t, s, "abc")

	r := &Run{ID: "run-1", Digest: "abc", Backend: "local", RunMode: "sync", Status: "submitted"}
	if err := s.SaveRun(r); err != nil {
		t.Fatalf("save run: %v", err)
	}

	got, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got == nil {
		t.Fatal("expected run, got nil")
	}
	if got.Status != "submitted" || got.Backend != "local" || got.RunMode != "sync" {
		t.Errorf("unexpected run %+v", got)
	}
	if got.Summaries != nil || got.Diagnostic != nil {
		t.Error("expected no summaries or diagnostic yet")
	}
	if got.CompletedAt != nil {
		t.Error("expected completed_at to be nil")
	}

	// Update to terminal
	r.Status = "succeeded"
	r.Polls = 4
	r.Summaries = json.RawMessage(`{"trainer":{"tier":2}}`)
	if err := s.SaveRun(r); err != nil {
		t.Fatalf("update run: %v", err)
	}
	got, _ = s.GetRun("run-1")
	if got.Status != "succeeded" || got.Polls != 4 {
		t.Errorf("expected succeeded after 4 polls, got %s after %d", got.Status, got.Polls)
	}
	if string(got.Summaries) != `{"trainer":{"tier":2}}` {
		t.Errorf("unexpected summaries %s", got.Summaries)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	// List
	_ = s.SaveRun(&Run{ID: "run-2", Digest: "abc", Backend: "local", RunMode: "sync", Status: "running"})
	runs, err := s.ListRuns("")
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-2" {
		t.Errorf("expected newest run first, got %s", runs[0].ID)
	}
	runs, _ = s.ListRuns("other")
	if len(runs) != 0 {
		t.Errorf("expected no runs for other digest, got %d", len(runs))
	}

	// Delete
	if err := s.DeleteRun("run-1"); err != nil {
		t.Fatalf("delete run: %v", err)
	}
	got, err = s.GetRun("run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}

func TestRunRequiresJob(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveRun(&Run{ID: "run-1", Digest: "unknown", Backend: "local", RunMode: "sync", Status: "submitted"})
	if err == nil {
		t.Error("expected foreign key error for a run without a cached job")
	}
}
