package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mtzanidakis/fedpipe/internal/config"
	"github.com/mtzanidakis/fedpipe/internal/natsbus"
	"github.com/nats-io/nats.go"
)

func serveLocal(t *testing.T, eng Engine) (*Client, *natsbus.Client, *Server) {
	t.Helper()
	bus, err := natsbus.New(config.NATSConfig{Port: -1})
	if err != nil {
		t.Fatalf("failed to create bus: %v", err)
	}
	t.Cleanup(bus.Close)

	serverConn, err := natsbus.NewClient(bus)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(serverConn.Close)
	srv := NewServer(eng, serverConn)
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(srv.Stop)

	clientConn, err := natsbus.NewClient(bus)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(clientConn.Close)
	return NewClient(clientConn, 2*time.Second), clientConn, srv
}

func (s *Server) tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, conn, srv := serveLocal(t, NewLocal())

	events := make(chan JobEvent, 16)
	if _, err := conn.Subscribe(natsbus.TopicEventsJobs, func(msg *nats.Msg) {
		var ev JobEvent
		if err := json.Unmarshal(msg.Data, &ev); err == nil {
			events <- ev
		}
	}); err != nil {
		t.Fatal(err)
	}
	conn.Flush()

	id, err := client.Submit(ctx, request(t, compileJob(t), BackendLocal, "sync"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	var st *Status
	for i := 0; i < 10; i++ {
		st, err = client.Status(ctx, id)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if st.State.Terminal() {
			break
		}
	}
	if st.State != StateSucceeded {
		t.Fatalf("expected succeeded, got %s", st.State)
	}
	if st.JobID != id || len(st.Summaries) != 3 {
		t.Errorf("unexpected status %+v", st)
	}

	want := []State{StatePending, StateRunning, StateSucceeded}
	for _, s := range want {
		select {
		case ev := <-events:
			if ev.JobID != id || ev.State != s {
				t.Errorf("expected event %s for %s, got %+v", s, id, ev)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s event", s)
		}
	}

	if n := srv.tracked(); n != 0 {
		t.Errorf("expected finished job to be forgotten, %d still tracked", n)
	}
	if _, err := client.Status(ctx, id); err != nil {
		t.Fatalf("status after completion: %v", err)
	}
	conn.Flush()
	select {
	case ev := <-events:
		t.Errorf("expected no event after the terminal one, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
	if n := srv.tracked(); n != 0 {
		t.Errorf("expected later polls not to track the job again, %d tracked", n)
	}
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	client, _, _ := serveLocal(t, NewLocal())

	_, err := client.Submit(ctx, request(t, compileJob(t), "eggroll", "sync"))
	if !errors.Is(err, ErrRejected) {
		t.Errorf("expected ErrRejected, got %v", err)
	}
	if _, err := client.Status(ctx, "missing"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("expected ErrUnknownJob, got %v", err)
	}
	if err := client.Cancel(ctx, "missing"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("expected ErrUnknownJob, got %v", err)
	}
}

func TestClientNoResponders(t *testing.T) {
	bus, err := natsbus.New(config.NATSConfig{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	defer bus.Close()
	conn, err := natsbus.NewClient(bus)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	client := NewClient(conn, 500*time.Millisecond)
	_, err = client.Status(context.Background(), "any")
	if err == nil || errors.Is(err, ErrUnknownJob) || errors.Is(err, ErrRejected) {
		t.Errorf("expected a transport error, got %v", err)
	}
}
