package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mtzanidakis/fedpipe/internal/pipeline"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	if cfg.Backend != "local" {
		t.Errorf("expected default backend local, got %s", cfg.Backend)
	}
	if cfg.WorkMode != "sync" {
		t.Errorf("expected default work_mode sync, got %s", cfg.WorkMode)
	}
	if cfg.NATS.Port != 4222 {
		t.Errorf("expected nats port 4222, got %d", cfg.NATS.Port)
	}
	if cfg.Store.Path != "data/fedpipe.db" {
		t.Errorf("expected store path data/fedpipe.db, got %s", cfg.Store.Path)
	}
	if cfg.Runner.PollInterval != time.Second {
		t.Errorf("expected poll_interval 1s, got %v", cfg.Runner.PollInterval)
	}
	if cfg.Runner.Timeout != time.Hour {
		t.Errorf("expected timeout 1h, got %v", cfg.Runner.Timeout)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("FEDPIPE_CONFIG", "/nonexistent/config.yaml")
	t.Setenv("FEDPIPE_BACKEND", "eggroll")
	t.Setenv("FEDPIPE_WORK_MODE", "async")
	t.Setenv("FEDPIPE_NATS_URL", "nats://engine:4222")
	t.Setenv("FEDPIPE_NATS_PORT", "5222")
	t.Setenv("FEDPIPE_STORE_PATH", "/tmp/runs.db")
	t.Setenv("FEDPIPE_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Backend != "eggroll" || cfg.WorkMode != "async" {
		t.Errorf("expected eggroll/async, got %s/%s", cfg.Backend, cfg.WorkMode)
	}
	if cfg.NATS.URL != "nats://engine:4222" || cfg.NATS.Port != 5222 {
		t.Errorf("unexpected nats config %+v", cfg.NATS)
	}
	if cfg.Store.Path != "/tmp/runs.db" {
		t.Errorf("expected store path /tmp/runs.db, got %s", cfg.Store.Path)
	}
	if level, _ := cfg.SlogLevel(); level != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", level)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
initiator:
  role: guest
  party_id: 9999
parties:
  guest: [9999]
  host: [10000, 10001]
  arbiter: 10000
backend: local
work_mode: sync
store:
  path: "${FEDPIPE_TEST_DIR}/fedpipe.db"
runner:
  poll_interval: 250ms
  timeout: 10m
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FEDPIPE_CONFIG", cfgPath)
	t.Setenv("FEDPIPE_TEST_DIR", dir)
	t.Setenv("FEDPIPE_BACKEND", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Parties) != 3 {
		t.Fatalf("expected 3 roles, got %d", len(cfg.Parties))
	}
	if cfg.Parties[0].Role != "guest" || cfg.Parties[1].Role != "host" || cfg.Parties[2].Role != "arbiter" {
		t.Errorf("expected roles in file order, got %+v", cfg.Parties)
	}
	if len(cfg.Parties[1].Parties) != 2 || cfg.Parties[1].Parties[1] != 10001 {
		t.Errorf("expected host parties [10000 10001], got %v", cfg.Parties[1].Parties)
	}
	if cfg.Party("arbiter") != 10000 {
		t.Errorf("expected scalar arbiter party 10000, got %d", cfg.Party("arbiter"))
	}
	if cfg.Store.Path != filepath.Join(dir, "fedpipe.db") {
		t.Errorf("expected expanded store path, got %s", cfg.Store.Path)
	}
	if cfg.Runner.PollInterval != 250*time.Millisecond || cfg.Runner.Timeout != 10*time.Minute {
		t.Errorf("unexpected runner config %+v", cfg.Runner)
	}

	b, err := cfg.RoleBinding()
	if err != nil {
		t.Fatalf("role binding: %v", err)
	}
	role, party := b.Initiator()
	if role != "guest" || party != 9999 {
		t.Errorf("expected initiator guest/9999, got %s/%d", role, party)
	}
}

func TestRoleBindingDefaultInitiator(t *testing.T) {
	cfg := defaults()
	cfg.Parties = Parties{{Role: "guest", Parties: []int64{1}}, {Role: "host", Parties: []int64{2}}}

	b, err := cfg.RoleBinding()
	if err != nil {
		t.Fatal(err)
	}
	if role, party := b.Initiator(); role != "guest" || party != 1 {
		t.Errorf("expected first party of first role to initiate, got %s/%d", role, party)
	}
}

func TestRoleBindingInvalid(t *testing.T) {
	cfg := defaults()
	cfg.Initiator = InitiatorConfig{Role: "guest", PartyID: 5}
	cfg.Parties = Parties{{Role: "guest", Parties: []int64{1}}}

	if _, err := cfg.RoleBinding(); !errors.Is(err, pipeline.ErrInitiatorNotBound) {
		t.Errorf("expected ErrInitiatorNotBound, got %v", err)
	}
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]string{
		"bad parties":   "parties: [1, 2]\n",
		"bad level":     "log:\n  level: chatty\n",
		"zero interval": "runner:\n  poll_interval: 0s\n",
	}
	for name, body := range cases {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv("FEDPIPE_CONFIG", path)
		if _, err := Load(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
