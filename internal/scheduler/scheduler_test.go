package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mtzanidakis/fedpipe/internal/config"
	"github.com/mtzanidakis/fedpipe/internal/natsbus"
	"github.com/mtzanidakis/fedpipe/internal/schedule"
	"github.com/nats-io/nats.go"
)

func mustSchedule(t *testing.T, raw string) *schedule.Schedule {
	t.Helper()
	s, err := schedule.Parse(raw)
	if err != nil {
		t.Fatalf("parse schedule: %v", err)
	}
	return s
}

func TestStartRepeatsUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	fit := func(context.Context) error {
		if calls.Add(1) == 3 {
			cancel()
		}
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- New(mustSchedule(t, "10ms"), fit, nil).Start(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 fits, got %d", n)
	}
}

func TestStartSurvivesFitErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	fit := func(context.Context) error {
		if calls.Add(1) >= 2 {
			cancel()
		}
		return errors.New("engine unavailable")
	}

	if err := New(mustSchedule(t, "10ms"), fit, nil).Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected the scheduler to keep going after an error, got %d fits", n)
	}
}

func TestStartWaitsForCron(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var calls atomic.Int32
	fit := func(context.Context) error {
		calls.Add(1)
		return nil
	}

	// Yearly: only the immediate first fit happens before the deadline.
	if err := New(mustSchedule(t, "@yearly"), fit, nil).Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 fit, got %d", n)
	}
}

func TestPublishFitExecutedEvent(t *testing.T) {
	bus, err := natsbus.New(config.NATSConfig{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	defer bus.Close()
	client, err := natsbus.NewClient(bus)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	events := make(chan map[string]any, 4)
	if _, err := client.Subscribe(natsbus.TopicEventsFitExecuted, func(msg *nats.Msg) {
		var ev map[string]any
		if err := json.Unmarshal(msg.Data, &ev); err == nil {
			events <- ev
		}
	}); err != nil {
		t.Fatal(err)
	}
	client.Flush()

	ctx, cancel := context.WithCancel(context.Background())
	fit := func(context.Context) error {
		cancel()
		return errors.New("diverged")
	}
	if err := New(mustSchedule(t, "1h"), fit, client).Start(ctx); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		if ev["type"] != "fit_executed" {
			t.Errorf("unexpected event type %v", ev["type"])
		}
		data, _ := ev["data"].(map[string]any)
		if data["status"] != "error" || data["error"] != "diverged" {
			t.Errorf("unexpected event data %v", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for fit event")
	}
}
