package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mtzanidakis/fedpipe/internal/compiler"
	"github.com/mtzanidakis/fedpipe/internal/config"
	"github.com/mtzanidakis/fedpipe/internal/engine"
	"github.com/mtzanidakis/fedpipe/internal/natsbus"
	"github.com/mtzanidakis/fedpipe/internal/runner"
	"github.com/mtzanidakis/fedpipe/internal/schedule"
	"github.com/mtzanidakis/fedpipe/internal/scheduler"
	"github.com/mtzanidakis/fedpipe/internal/store"
)

func runFit(args []string) error {
	var path, every, summary string
	if _, err := parseFlags(args, map[string]*string{
		"-f":       &path,
		"-every":   &every,
		"-summary": &summary,
	}); err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintf(os.Stderr, "Usage: fedpipe fit -f <pipeline.hcl> [-every <schedule>] [-summary <a,b>]\n")
		return fmt.Errorf("missing -f flag")
	}

	var sched *schedule.Schedule
	if every != "" {
		var err error
		if sched, err = schedule.Parse(every); err != nil {
			return err
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	job, err := compileFile(path, cfg)
	if err != nil {
		return err
	}

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	eng, err := connectEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord := runner.New(eng.Client, db, cfg.Runner)
	names := splitList(summary)

	if sched == nil {
		return fitOnce(ctx, coord, job, cfg, names)
	}

	slog.Info("recurring fit", "schedule", sched.String(), "digest", job.Digest())
	return scheduler.New(sched, func(ctx context.Context) error {
		return fitOnce(ctx, coord, job, cfg, names)
	}, eng.events).Start(ctx)
}

func fitOnce(ctx context.Context, coord *runner.Coordinator, job *compiler.Job, cfg *config.Config, names []string) error {
	run, err := coord.Fit(ctx, job, cfg.Backend, cfg.WorkMode)
	if err != nil {
		if run != nil && errors.Is(err, context.Canceled) {
			slog.Info("canceling run", "job", run.JobID())
			cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if cerr := coord.Cancel(cancelCtx, run); cerr != nil {
				slog.Warn("cancel failed", "job", run.JobID(), "error", cerr)
			}
		}
		return err
	}

	fmt.Printf("Job %s %s after %d polls\n", run.JobID(), run.State(), run.Polls())
	if run.State() == runner.StateFailed {
		return fmt.Errorf("run %s failed: %s", run.JobID(), run.Diagnostic())
	}
	if run.State() != runner.StateSucceeded {
		return nil
	}

	if len(names) == 0 {
		names = job.Components()
	}
	for _, name := range names {
		s, err := coord.Summary(run, name)
		if err != nil {
			return err
		}
		printSummary(os.Stdout, name, s)
	}
	return nil
}

func printSummary(w io.Writer, name string, s json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, s, "  ", "  "); err != nil {
		buf.Reset()
		buf.Write(s)
	}
	fmt.Fprintf(w, "%s:\n  %s\n", name, buf.String())
}

// engineConn is an engine client over NATS. The same connection carries
// scheduler events.
type engineConn struct {
	*engine.Client
	events *natsbus.Client
	close  func()
}

// connectEngine dials the configured NATS server. Without a URL it starts an
// embedded server with the local engine attached.
func connectEngine(cfg *config.Config) (*engineConn, error) {
	if cfg.NATS.URL != "" {
		conn, err := natsbus.NewClientFromURL(cfg.NATS.URL)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		slog.Info("nats connected", "url", cfg.NATS.URL)
		return &engineConn{Client: engine.NewClient(conn, 0), events: conn, close: conn.Close}, nil
	}

	srv, err := startEngine(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := natsbus.NewClient(srv.bus)
	if err != nil {
		srv.close()
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	closeAll := func() {
		conn.Close()
		srv.close()
	}
	return &engineConn{Client: engine.NewClient(conn, 0), events: conn, close: closeAll}, nil
}
