// Package runlog records every submitted batch in a local SQLite database so
// scheduler job IDs can be traced back to the clpipe invocation that produced them.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/clpipe/batch"
	"github.com/teranos/clpipe/db"
	"github.com/teranos/clpipe/errors"
)

// DefaultListLimit caps ListRuns when the caller passes a non-positive limit.
const DefaultListLimit = 20

// Run is one recorded SubmitJobs call.
type Run struct {
	ID          string    `json:"id"`
	Step        string    `json:"step"` // "fmriprep", "bids-setup", "submit"
	Subjects    []string  `json:"subjects,omitempty"`
	Scheduler   string    `json:"scheduler"`
	LogDir      string    `json:"log_dir"`
	ConfigPath  string    `json:"config_path,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	JobCount    int       `json:"job_count"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
}

// JobRecord is one row of a recorded run, in submission order.
type JobRecord struct {
	Position   int    `json:"position"`
	JobName    string `json:"job_name"`
	ScriptPath string `json:"script_path"`
	JobID      string `json:"job_id,omitempty"`
	ExitCode   int    `json:"exit_code"`
	Error      string `json:"error,omitempty"`
}

// Store persists runs.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an already-migrated database.
func NewStore(conn *sql.DB) *Store {
	return &Store{db: conn, now: time.Now}
}

// Open creates the parent directory of path, opens the database and migrates it.
func Open(path string, logger *zap.SugaredLogger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "create run log directory %s", dir)
		}
	}
	conn, err := db.OpenWithMigrations(path, logger)
	if err != nil {
		return nil, errors.WithHint(err, "set runlog.enabled = false in clpipe.toml to skip the run log")
	}
	return NewStore(conn), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordBatch stores run and its per-job results in one transaction. A blank
// run.ID gets a fresh UUID, a zero SubmittedAt gets the current time, and the
// counts are derived from results. The stored run is returned.
func (s *Store) RecordBatch(ctx context.Context, run Run, results []batch.SubmissionResult) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.SubmittedAt.IsZero() {
		run.SubmittedAt = s.now()
	}
	run.SubmittedAt = run.SubmittedAt.UTC()
	run.JobCount = len(results)
	run.Succeeded, run.Failed = batch.Summarize(results)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, closedHint(errors.Wrap(err, "failed to begin run log transaction"))
	}

	subjects, err := encodeSubjects(run.Subjects)
	if err != nil {
		tx.Rollback()
		return Run{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batch_runs (
			id, step, subjects, scheduler, log_dir, config_path,
			submitted_at, job_count, succeeded, failed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Step,
		subjects,
		run.Scheduler,
		run.LogDir,
		run.ConfigPath,
		run.SubmittedAt,
		run.JobCount,
		run.Succeeded,
		run.Failed,
	)
	if err != nil {
		tx.Rollback()
		return Run{}, closedHint(errors.Wrapf(err, "failed to insert run %s", run.ID))
	}

	for i, r := range results {
		msg := ""
		if r.Err != nil {
			msg = r.Err.Error()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO batch_jobs (
				batch_id, position, job_name, script_path, job_id, exit_code, error
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.ID, i, r.JobName, r.ScriptPath, r.JobID, r.ExitCode, msg)
		if err != nil {
			tx.Rollback()
			return Run{}, errors.Wrapf(err, "failed to insert job %s", r.JobName)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, closedHint(errors.Wrap(err, "failed to commit run log"))
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, step, subjects, scheduler, log_dir, config_path,
		       submitted_at, job_count, succeeded, failed
		FROM batch_runs
		ORDER BY submitted_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, closedHint(errors.Wrap(err, "failed to list runs"))
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			subjects string
		)
		if err := rows.Scan(&r.ID, &r.Step, &subjects, &r.Scheduler, &r.LogDir, &r.ConfigPath,
			&r.SubmittedAt, &r.JobCount, &r.Succeeded, &r.Failed); err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		if r.Subjects, err = decodeSubjects(subjects); err != nil {
			return nil, errors.Wrapf(err, "run %s", r.ID)
		}
		runs = append(runs, r)
	}
	return runs, errors.Wrap(rows.Err(), "failed to iterate runs")
}

// Jobs returns the job rows of one run in submission order.
func (s *Store) Jobs(ctx context.Context, batchID string) ([]JobRecord, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batch_runs WHERE id = ?`, batchID).Scan(&exists)
	if err != nil {
		return nil, closedHint(errors.Wrap(err, "failed to look up run"))
	}
	if exists == 0 {
		return nil, errors.NewNotFoundError("run %s", batchID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, job_name, script_path, job_id, exit_code, error
		FROM batch_jobs
		WHERE batch_id = ?
		ORDER BY position
	`, batchID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var jobs []JobRecord
	for rows.Next() {
		var j JobRecord
		if err := rows.Scan(&j.Position, &j.JobName, &j.ScriptPath, &j.JobID, &j.ExitCode, &j.Error); err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, j)
	}
	return jobs, errors.Wrap(rows.Err(), "failed to iterate jobs")
}

func closedHint(err error) error {
	switch {
	case db.IsDatabaseClosed(err):
		return errors.WithHint(err, "the run log was closed before the batch finished recording")
	case db.IsBusy(err):
		return errors.WithHintf(err, "another clpipe process held the run log for over %dms; retry", db.SQLiteBusyTimeoutMS)
	}
	return err
}

// Subjects are stored as a JSON array; no subjects is the empty string.
func encodeSubjects(subjects []string) (string, error) {
	if len(subjects) == 0 {
		return "", nil
	}
	b, err := json.Marshal(subjects)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode subjects")
	}
	return string(b), nil
}

func decodeSubjects(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var subjects []string
	if err := json.Unmarshal([]byte(raw), &subjects); err != nil {
		return nil, errors.Wrap(err, "failed to decode subjects")
	}
	return subjects, nil
}
