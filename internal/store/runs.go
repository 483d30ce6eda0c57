package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Run is the persisted snapshot of one job submission.
type Run struct {
	ID          string          `json:"id"`
	Digest      string          `json:"digest"`
	Backend     string          `json:"backend"`
	RunMode     string          `json:"run_mode"`
	Status      string          `json:"status"`
	Summaries   json.RawMessage `json:"summaries,omitempty"`
	Diagnostic  json.RawMessage `json:"diagnostic,omitempty"`
	Polls       int             `json:"polls"`
	SubmittedAt time.Time       `json:"submitted_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*Run, error) {
	r := &Run{}
	var summaries, diagnostic *string
	err := scanner.Scan(&r.ID, &r.Digest, &r.Backend, &r.RunMode, &r.Status, &summaries, &diagnostic, &r.Polls, &r.SubmittedAt, &r.UpdatedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	if summaries != nil {
		r.Summaries = json.RawMessage(*summaries)
	}
	if diagnostic != nil {
		r.Diagnostic = json.RawMessage(*diagnostic)
	}
	return r, nil
}

const runColumns = `id, digest, backend, run_mode, status, summaries, diagnostic, polls, submitted_at, updated_at, completed_at`

// SaveRun inserts a run or updates its mutable fields. completed_at is set
// the first time a terminal status is saved.
func (s *Store) SaveRun(r *Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, digest, backend, run_mode, status, summaries, diagnostic, polls)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			summaries = excluded.summaries,
			diagnostic = excluded.diagnostic,
			polls = excluded.polls,
			updated_at = CURRENT_TIMESTAMP,
			completed_at = CASE
				WHEN completed_at IS NULL AND excluded.status IN ('succeeded', 'failed', 'canceled') THEN CURRENT_TIMESTAMP
				ELSE completed_at END`,
		r.ID, r.Digest, r.Backend, r.RunMode, r.Status, nullJSON(r.Summaries), nullJSON(r.Diagnostic), r.Polls)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns runs newest first. A non-empty digest restricts the list
// to runs of that job.
func (s *Store) ListRuns(digest string) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if digest != "" {
		query += ` WHERE digest = ?`
		args = append(args, digest)
	}
	query += ` ORDER BY submitted_at DESC, rowid DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func (s *Store) DeleteRun(id string) error {
	_, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	return err
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
