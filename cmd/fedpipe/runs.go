package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mtzanidakis/fedpipe/internal/compiler"
	"github.com/mtzanidakis/fedpipe/internal/runner"
	"github.com/mtzanidakis/fedpipe/internal/store"
)

func runRuns(args []string) error {
	var digest string
	if _, err := parseFlags(args, map[string]*string{"-digest": &digest}); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	runs, err := db.ListRuns(digest)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}
	printRuns(os.Stdout, runs)
	return nil
}

func printRuns(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tSTATUS\tBACKEND\tMODE\tPOLLS\tDIGEST\tSUBMITTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.Status, r.Backend, r.RunMode, r.Polls, shortDigest(r.Digest),
			r.SubmittedAt.Local().Format(time.DateTime))
	}
	w.Flush()
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func runStatus(args []string) error {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: fedpipe status <job-id>\n")
		return fmt.Errorf("expected a job id")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	run, err := runner.New(nil, db, cfg.Runner).Load(args[0])
	if err != nil {
		return err
	}

	job := run.Job()
	fmt.Printf("Job:       %s\n", run.JobID())
	fmt.Printf("Status:    %s\n", run.State())
	fmt.Printf("Backend:   %s (%s)\n", run.Backend(), run.RunMode())
	fmt.Printf("Polls:     %d\n", run.Polls())
	fmt.Printf("Digest:    %s\n", job.Digest())
	for i, tier := range job.Tiers() {
		fmt.Printf("Tier %d:    %s\n", i, strings.Join(tier, ", "))
	}
	if run.State() == runner.StateFailed {
		fmt.Printf("Diagnostic: %s\n", run.Diagnostic())
	}
	summaries := run.Summaries()
	for _, name := range job.Components() {
		if s, ok := summaries[name]; ok {
			printSummary(os.Stdout, name, s)
		}
	}
	return nil
}

func printDiff(w io.Writer, d compiler.JobDiff) {
	sections := []struct {
		label string
		names []string
	}{
		{"added", d.ComponentsAdded},
		{"removed", d.ComponentsRemoved},
		{"kind changed", d.KindChanged},
		{"wiring changed", d.WiringChanged},
		{"params changed", d.ParamsChanged},
		{"overrides changed", d.OverridesChanged},
	}
	for _, s := range sections {
		if len(s.names) > 0 {
			fmt.Fprintf(w, "%-18s %s\n", s.label+":", strings.Join(s.names, ", "))
		}
	}
	if d.RolesChanged {
		fmt.Fprintln(w, "roles changed")
	}
	if d.InitiatorChanged {
		fmt.Fprintln(w, "initiator changed")
	}
}
