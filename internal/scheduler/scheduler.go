package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mtzanidakis/fedpipe/internal/natsbus"
	"github.com/mtzanidakis/fedpipe/internal/schedule"
)

// FitFunc performs one fit. Its error is logged and does not stop the
// scheduler.
type FitFunc func(ctx context.Context) error

// Scheduler repeats a fit on a schedule until its context ends. Each
// execution starts after the previous one returned.
type Scheduler struct {
	schedule   *schedule.Schedule
	fit        FitFunc
	natsClient *natsbus.Client
	now        func() time.Time
}

// New returns a scheduler for fit. The client is optional; with one, an
// event is published after every execution.
func New(s *schedule.Schedule, fit FitFunc, client *natsbus.Client) *Scheduler {
	return &Scheduler{
		schedule:   s,
		fit:        fit,
		natsClient: client,
		now:        time.Now,
	}
}

// Start runs the first fit immediately and blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	slog.Info("scheduler started", "schedule", s.schedule.String())

	runs := 0
	for {
		runs++
		s.execute(ctx, runs)
		if ctx.Err() != nil {
			slog.Info("scheduler stopped", "runs", runs)
			return nil
		}

		next, err := s.schedule.Next(s.now())
		if err != nil {
			return err
		}
		slog.Info("next fit scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("scheduler stopped", "runs", runs)
			return nil
		case <-timer.C:
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, n int) {
	slog.Info("executing scheduled fit", "run", n)

	started := s.now()
	err := s.fit(ctx)

	status := "success"
	var lastError string
	if err != nil {
		status = "error"
		lastError = err.Error()
		if ctx.Err() == nil {
			slog.Error("scheduled fit failed", "run", n, "error", err)
		}
	}
	s.publishFitExecutedEvent(n, status, lastError, s.now().Sub(started))
}

func (s *Scheduler) publishFitExecutedEvent(n int, status, lastError string, took time.Duration) {
	if s.natsClient == nil {
		return
	}

	event := map[string]any{
		"type":      "fit_executed",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"run":         n,
			"status":      status,
			"error":       lastError,
			"duration_ms": took.Milliseconds(),
		},
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	_ = s.natsClient.Publish(natsbus.TopicEventsFitExecuted, data)
}
