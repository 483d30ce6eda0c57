package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mtzanidakis/fedpipe/internal/natsbus"
	"github.com/nats-io/nats.go"
)

const (
	codeRejected   = "rejected"
	codeUnknownJob = "unknown_job"
	codeInternal   = "internal"

	queueGroup     = "fedpipe-engine"
	handlerTimeout = 30 * time.Second
)

type jobRef struct {
	JobID string `json:"job_id"`
}

// reply is the envelope of every engine response on the bus.
type reply struct {
	JobID  string  `json:"job_id,omitempty"`
	Status *Status `json:"status,omitempty"`
	Code   string  `json:"code,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// JobEvent is published on events.job.<id> whenever a served job changes
// state.
type JobEvent struct {
	JobID string    `json:"job_id"`
	State State     `json:"state"`
	Time  time.Time `json:"time"`
}

// Client is an Engine reached over NATS request/reply.
type Client struct {
	bus     *natsbus.Client
	timeout time.Duration
}

// NewClient returns an engine client. timeout bounds each request.
func NewClient(bus *natsbus.Client, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{bus: bus, timeout: timeout}
}

func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	r, err := c.call(ctx, natsbus.TopicEngineSubmit, req)
	if err != nil {
		return "", err
	}
	return r.JobID, nil
}

func (c *Client) Status(ctx context.Context, jobID string) (*Status, error) {
	r, err := c.call(ctx, natsbus.TopicEngineStatus, jobRef{JobID: jobID})
	if err != nil {
		return nil, err
	}
	if r.Status == nil {
		return nil, fmt.Errorf("engine status: empty reply for %s", jobID)
	}
	return r.Status, nil
}

func (c *Client) Cancel(ctx context.Context, jobID string) error {
	_, err := c.call(ctx, natsbus.TopicEngineCancel, jobRef{JobID: jobID})
	return err
}

func (c *Client) call(ctx context.Context, topic string, payload any) (*reply, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", topic, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.bus.RequestContext(ctx, topic, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", topic, err)
	}

	var r reply
	if err := json.Unmarshal(msg.Data, &r); err != nil {
		return nil, fmt.Errorf("decode %s reply: %w", topic, err)
	}
	switch r.Code {
	case "":
		return &r, nil
	case codeRejected:
		return nil, fmt.Errorf("%w: %s", ErrRejected, strings.TrimPrefix(r.Error, ErrRejected.Error()+": "))
	case codeUnknownJob:
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, strings.TrimPrefix(r.Error, ErrUnknownJob.Error()+": "))
	default:
		return nil, fmt.Errorf("%s: engine error: %s", topic, r.Error)
	}
}

// Server exposes an Engine on the bus.
type Server struct {
	eng    Engine
	client *natsbus.Client

	mu     sync.Mutex
	subs   []*nats.Subscription
	states map[string]State
}

func NewServer(eng Engine, client *natsbus.Client) *Server {
	return &Server{
		eng:    eng,
		client: client,
		states: make(map[string]State),
	}
}

// Start subscribes to the engine subjects. Several servers on one bus share
// the load through a queue group.
func (s *Server) Start() error {
	handlers := map[string]func(context.Context, *nats.Msg) reply{
		natsbus.TopicEngineSubmit: s.handleSubmit,
		natsbus.TopicEngineStatus: s.handleStatus,
		natsbus.TopicEngineCancel: s.handleCancel,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, topic := range []string{natsbus.TopicEngineSubmit, natsbus.TopicEngineStatus, natsbus.TopicEngineCancel} {
		handle := handlers[topic]
		sub, err := s.client.QueueSubscribe(topic, queueGroup, func(msg *nats.Msg) {
			ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
			defer cancel()
			s.respond(msg, handle(ctx, msg))
		})
		if err != nil {
			s.unsubscribe()
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		s.subs = append(s.subs, sub)
	}
	if err := s.client.Flush(); err != nil {
		s.unsubscribe()
		return fmt.Errorf("flush subscriptions: %w", err)
	}
	slog.Info("engine server started", "subjects", len(s.subs))
	return nil
}

func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribe()
}

func (s *Server) unsubscribe() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}

func (s *Server) handleSubmit(ctx context.Context, msg *nats.Msg) reply {
	var req Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return reply{Code: codeRejected, Error: "invalid request: " + err.Error()}
	}
	id, err := s.eng.Submit(ctx, req)
	if err != nil {
		return errorReply(err)
	}
	s.observe(id, StatePending)
	return reply{JobID: id}
}

func (s *Server) handleStatus(ctx context.Context, msg *nats.Msg) reply {
	var ref jobRef
	if err := json.Unmarshal(msg.Data, &ref); err != nil {
		return reply{Code: codeInternal, Error: "invalid request: " + err.Error()}
	}
	st, err := s.eng.Status(ctx, ref.JobID)
	if err != nil {
		return errorReply(err)
	}
	s.observe(ref.JobID, st.State)
	return reply{JobID: ref.JobID, Status: st}
}

func (s *Server) handleCancel(ctx context.Context, msg *nats.Msg) reply {
	var ref jobRef
	if err := json.Unmarshal(msg.Data, &ref); err != nil {
		return reply{Code: codeInternal, Error: "invalid request: " + err.Error()}
	}
	if err := s.eng.Cancel(ctx, ref.JobID); err != nil {
		return errorReply(err)
	}
	if st, err := s.eng.Status(ctx, ref.JobID); err == nil {
		s.observe(ref.JobID, st.State)
	}
	return reply{JobID: ref.JobID}
}

// observe publishes a job event when the state differs from the last one
// seen. A job is forgotten once its terminal event went out, and terminal
// states of jobs no longer tracked are not published again.
func (s *Server) observe(jobID string, state State) {
	s.mu.Lock()
	prev, seen := s.states[jobID]
	if (seen && prev == state) || (!seen && state.Terminal()) {
		s.mu.Unlock()
		return
	}
	if state.Terminal() {
		delete(s.states, jobID)
	} else {
		s.states[jobID] = state
	}
	s.mu.Unlock()

	ev := JobEvent{JobID: jobID, State: state, Time: time.Now().UTC()}
	if err := s.client.PublishJSON(natsbus.TopicEventsJob(jobID), ev); err != nil {
		slog.Warn("publish job event failed", "job", jobID, "error", err)
	}
}

func (s *Server) respond(msg *nats.Msg, r reply) {
	data, err := json.Marshal(r)
	if err != nil {
		slog.Error("failed to marshal engine reply", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Error("failed to respond to engine request", "subject", msg.Subject, "error", err)
	}
}

func errorReply(err error) reply {
	switch {
	case errors.Is(err, ErrRejected):
		return reply{Code: codeRejected, Error: err.Error()}
	case errors.Is(err, ErrUnknownJob):
		return reply{Code: codeUnknownJob, Error: err.Error()}
	default:
		return reply{Code: codeInternal, Error: err.Error()}
	}
}
