// Package runner submits compiled jobs to an execution engine and tracks each
// submission to a terminal state by polling.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mtzanidakis/fedpipe/internal/compiler"
	"github.com/mtzanidakis/fedpipe/internal/component"
	"github.com/mtzanidakis/fedpipe/internal/config"
	"github.com/mtzanidakis/fedpipe/internal/engine"
	"github.com/mtzanidakis/fedpipe/internal/store"
)

var (
	ErrSubmission = errors.New("submission rejected")
	ErrTimeout    = errors.New("timed out waiting for run")
	ErrNotReady   = errors.New("run has not succeeded")
	ErrNotFound   = errors.New("not found")
)

// Coordinator drives runs against one engine. The store is optional; with
// one, every run transition is persisted and jobs are cached by digest.
type Coordinator struct {
	eng      engine.Engine
	store    *store.Store
	cfg      config.RunnerConfig
	registry *component.Registry
}

type Option func(*Coordinator)

// WithRegistry sets the kinds used to rebuild persisted jobs.
func WithRegistry(reg *component.Registry) Option {
	return func(c *Coordinator) { c.registry = reg }
}

func New(eng engine.Engine, st *store.Store, cfg config.RunnerConfig, opts ...Option) *Coordinator {
	c := &Coordinator{
		eng:      eng,
		store:    st,
		cfg:      cfg,
		registry: component.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit hands job to the engine with the given execution selection and
// returns the run in the submitted state.
func (c *Coordinator) Submit(ctx context.Context, job *compiler.Job, backend, runMode string) (*Run, error) {
	if job == nil {
		return nil, fmt.Errorf("submit: nil job")
	}
	run := newRun(job, backend, runMode)

	runtime, err := job.WithExecution(backend, runMode)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	c.cacheJob(job)

	id, err := c.eng.Submit(ctx, engine.Request{
		Structure: job.Structure(),
		Runtime:   runtime,
		Backend:   backend,
		RunMode:   runMode,
	})
	if err != nil {
		slog.Warn("run rejected", "digest", job.Digest(), "backend", backend, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	if id == "" {
		return nil, fmt.Errorf("%w: engine returned no job id", ErrSubmission)
	}

	run.mu.Lock()
	run.jobID = id
	run.moveTo(StateSubmitted)
	run.mu.Unlock()
	c.persist(run)

	slog.Info("run submitted", "job", id, "digest", job.Digest(), "backend", backend, "run_mode", runMode)
	return run, nil
}

// Await polls the engine until run is terminal. The first poll is immediate
// and later polls start at least interval after the previous one returned.
// A timeout of zero waits until ctx is done. On timeout the run keeps its
// last observed state and the job keeps running.
func (c *Coordinator) Await(ctx context.Context, run *Run, interval, timeout time.Duration) error {
	if run.State().Terminal() {
		return nil
	}
	if interval <= 0 {
		return fmt.Errorf("await: poll interval must be positive")
	}

	awaitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		awaitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	id := run.JobID()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-awaitCtx.Done():
			return c.awaitDone(ctx, run)
		case <-timer.C:
		}

		st, err := c.eng.Status(awaitCtx, id)
		if err == nil && st == nil {
			err = fmt.Errorf("engine returned no status for %s", id)
		}
		if err != nil {
			run.countPoll()
			if errors.Is(err, engine.ErrUnknownJob) {
				return fmt.Errorf("await %s: %w", id, err)
			}
			if awaitCtx.Err() != nil {
				return c.awaitDone(ctx, run)
			}
			slog.Warn("status poll failed, retrying", "job", id, "error", err)
			timer.Reset(interval)
			continue
		}

		if run.observe(st) {
			c.persist(run)
			slog.Info("run state changed", "job", id, "state", run.State(), "polls", run.Polls())
		}
		if run.State().Terminal() {
			return nil
		}
		timer.Reset(interval)
	}
}

func (c *Coordinator) awaitDone(ctx context.Context, run *Run) error {
	c.persist(run)
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s still %s after %d polls", ErrTimeout, run.JobID(), run.State(), run.Polls())
}

// Fit submits job and waits for it with the configured poll interval and
// timeout. The run is returned whenever submission succeeded.
func (c *Coordinator) Fit(ctx context.Context, job *compiler.Job, backend, runMode string) (*Run, error) {
	run, err := c.Submit(ctx, job, backend, runMode)
	if err != nil {
		return nil, err
	}
	if err := c.Await(ctx, run, c.cfg.PollInterval, c.cfg.Timeout); err != nil {
		return run, err
	}
	if run.State() == StateFailed {
		slog.Warn("run failed", "job", run.JobID(), "diagnostic", string(run.Diagnostic()))
	}
	return run, nil
}

// Summary returns the result payload of one component of a succeeded run.
func (c *Coordinator) Summary(run *Run, name string) (json.RawMessage, error) {
	if state := run.State(); state != StateSucceeded {
		return nil, fmt.Errorf("%w: job %s is %s", ErrNotReady, run.JobID(), state)
	}
	if !run.job.HasComponent(name) {
		return nil, fmt.Errorf("%w: component %s", ErrNotFound, name)
	}
	run.mu.Lock()
	s, ok := run.summaries[name]
	run.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: engine reported no summary for %s", ErrNotFound, name)
	}
	return append(json.RawMessage(nil), s...), nil
}

// Cancel stops a submitted or running job. Canceling a terminal run is a
// no-op.
func (c *Coordinator) Cancel(ctx context.Context, run *Run) error {
	if run.State().Terminal() {
		return nil
	}
	if err := c.eng.Cancel(ctx, run.JobID()); err != nil {
		return fmt.Errorf("cancel %s: %w", run.JobID(), err)
	}

	run.mu.Lock()
	changed := run.moveTo(StateCanceled)
	run.mu.Unlock()
	if changed {
		c.persist(run)
		slog.Info("run canceled", "job", run.JobID())
	}
	return nil
}

// Load restores a persisted run and its compiled job. A non-terminal run can
// be awaited again.
func (c *Coordinator) Load(id string) (*Run, error) {
	if c.store == nil {
		return nil, fmt.Errorf("load %s: no store configured", id)
	}
	rec, err := c.store.GetRun(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	jrec, err := c.store.GetJob(rec.Digest)
	if err != nil {
		return nil, err
	}
	if jrec == nil {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, rec.Digest)
	}
	job, err := compiler.ParseJob(jrec.Structure, jrec.Runtime, c.registry)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", rec.Digest, err)
	}

	run := newRun(job, rec.Backend, rec.RunMode)
	run.jobID = rec.ID
	run.state = State(rec.Status)
	run.polls = rec.Polls
	run.diagnostic = rec.Diagnostic
	if len(rec.Summaries) > 0 {
		if err := json.Unmarshal(rec.Summaries, &run.summaries); err != nil {
			return nil, fmt.Errorf("decode summaries of %s: %w", id, err)
		}
	}
	return run, nil
}

func (c *Coordinator) cacheJob(job *compiler.Job) {
	if c.store == nil {
		return
	}
	err := c.store.SaveJob(&store.Job{
		Digest:    job.Digest(),
		Structure: job.Structure(),
		Runtime:   job.Runtime(),
	})
	if err != nil {
		slog.Warn("cache compiled job failed", "digest", job.Digest(), "error", err)
	}
}

func (c *Coordinator) persist(run *Run) {
	if c.store == nil {
		return
	}

	run.mu.Lock()
	rec := &store.Run{
		ID:         run.jobID,
		Digest:     run.job.Digest(),
		Backend:    run.backend,
		RunMode:    run.runMode,
		Status:     string(run.state),
		Diagnostic: run.diagnostic,
		Polls:      run.polls,
	}
	var err error
	if len(run.summaries) > 0 {
		rec.Summaries, err = json.Marshal(run.summaries)
	}
	run.mu.Unlock()

	if err != nil {
		slog.Warn("encode run summaries failed", "job", rec.ID, "error", err)
		return
	}
	if err := c.store.SaveRun(rec); err != nil {
		slog.Warn("persist run failed", "job", rec.ID, "error", err)
	}
}
