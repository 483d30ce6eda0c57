package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Job is a compiled job cached by the digest of its artifacts.
type Job struct {
	Digest    string          `json:"digest"`
	Structure json.RawMessage `json:"structure"`
	Runtime   json.RawMessage `json:"runtime"`
	CreatedAt time.Time       `json:"created_at"`
}

// SaveJob stores a compiled job. Artifacts are content addressed, so saving
// the same digest again keeps the first row.
func (s *Store) SaveJob(j *Job) error {
	_, err := s.db.Exec(`
		INSERT INTO jobs (digest, structure, runtime)
		VALUES (?, ?, ?)
		ON CONFLICT(digest) DO NOTHING`,
		j.Digest, string(j.Structure), string(j.Runtime))
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(digest string) (*Job, error) {
	j := &Job{}
	var structure, runtime string
	err := s.db.QueryRow(`SELECT digest, structure, runtime, created_at FROM jobs WHERE digest = ?`, digest).
		Scan(&j.Digest, &structure, &runtime, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	j.Structure = json.RawMessage(structure)
	j.Runtime = json.RawMessage(runtime)
	return j, nil
}
