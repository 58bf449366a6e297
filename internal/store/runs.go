package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run is one entry of the aggregation history.
type Run struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitzero"`
	FilesFound   int       `json:"files_found"`
	FilesUsed    int       `json:"files_used"`
	FilesSkipped int       `json:"files_skipped"`
	Records      int       `json:"records"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
}

// StartRun records the start of an aggregation run under a new id.
func (s *Store) StartRun(ctx context.Context) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: s.now().UTC(),
		Status:    RunRunning,
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO "+runsTable+" (id, started_at, status) VALUES (?, ?, ?)",
		run.ID, run.StartedAt.Format(timeLayout), run.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("recording run start: %w", err)
	}
	return run, nil
}

// FinishRun stores the outcome of run. A non-nil runErr marks it failed.
func (s *Store) FinishRun(ctx context.Context, run *Run, runErr error) error {
	run.FinishedAt = s.now().UTC()
	run.Status = RunSucceeded
	run.Error = ""
	if runErr != nil {
		run.Status = RunFailed
		run.Error = runErr.Error()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE `+runsTable+`
		SET finished_at = ?, files_found = ?, files_used = ?, files_skipped = ?,
		    records = ?, status = ?, error = ?
		WHERE id = ?`,
		run.FinishedAt.Format(timeLayout), run.FilesFound, run.FilesUsed, run.FilesSkipped,
		run.Records, run.Status, run.Error, run.ID,
	)
	if err != nil {
		return fmt.Errorf("recording run outcome: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, started_at, finished_at, files_found, files_used, files_skipped,
		       records, status, error
		FROM ` + runsTable + `
		ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.FilesFound, &r.FilesUsed,
			&r.FilesSkipped, &r.Records, &r.Status, &r.Error); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, started) //nolint:errcheck // Written by StartRun
		if finished.Valid {
			r.FinishedAt, _ = time.Parse(timeLayout, finished.String) //nolint:errcheck // Written by FinishRun
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}
