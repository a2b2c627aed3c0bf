// Package archive persists archived execution graphs in SQLite so a job stays
// queryable after its runner is gone.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/jobcluster/internal/execution"
)

// ErrNotFound is returned by Get for unknown job ids.
var ErrNotFound = errors.New("archived execution graph not found")

// Summary is the lightweight listing form of an archived graph.
type Summary struct {
	JobID      string              `json:"job_id"`
	JobName    string              `json:"job_name"`
	State      execution.JobStatus `json:"state"`
	FinishedAt time.Time           `json:"finished_at"`
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Put stores g, replacing any earlier graph for the same job, and appends a
// job_log entry in the same transaction.
func (s *Store) Put(ctx context.Context, g *execution.ArchivedExecutionGraph) error {
	if g == nil {
		return fmt.Errorf("archived graph is nil")
	}
	if g.JobID == "" {
		return fmt.Errorf("job id is empty")
	}
	if !g.State.IsGloballyTerminal() {
		return fmt.Errorf("job %s is not terminal: %s", g.JobID, g.State)
	}

	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal archived graph: %w", err)
	}

	var cause any
	if g.FailureCause != "" {
		cause = g.FailureCause
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO archived_execution_graphs(
  job_id, job_name, state, graph, submitted_at, finished_at, failure_cause, archived_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(job_id) DO UPDATE SET
  job_name = excluded.job_name,
  state = excluded.state,
  graph = excluded.graph,
  submitted_at = excluded.submitted_at,
  finished_at = excluded.finished_at,
  failure_cause = excluded.failure_cause,
  archived_at = excluded.archived_at;
`, g.JobID, g.JobName, g.State, string(raw),
		g.SubmittedAt.UTC().Format(time.RFC3339Nano),
		g.FinishedAt.UTC().Format(time.RFC3339Nano),
		cause, now)
	if err != nil {
		return fmt.Errorf("upsert archived graph: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO job_log(id, job_id, state, failure_cause, created_at)
VALUES(?, ?, ?, ?, ?);
`, uuid.NewString(), g.JobID, g.State, cause, now)
	if err != nil {
		return fmt.Errorf("insert job_log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Get returns the archived graph for jobID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, jobID string) (*execution.ArchivedExecutionGraph, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT graph FROM archived_execution_graphs WHERE job_id = ?;", jobID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("read archived graph: %w", err)
	}

	var g execution.ArchivedExecutionGraph
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, fmt.Errorf("decode archived graph for job %s: %w", jobID, err)
	}
	return &g, nil
}

// List returns summaries of every archived graph, most recently finished first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT job_id, job_name, state, finished_at
FROM archived_execution_graphs
ORDER BY finished_at DESC, job_id ASC;
`)
	if err != nil {
		return nil, fmt.Errorf("list archived graphs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum        Summary
			state      string
			finishedAt string
		)
		if err := rows.Scan(&sum.JobID, &sum.JobName, &state, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan archived graph: %w", err)
		}
		sum.State = execution.JobStatus(state)
		if t, err := time.Parse(time.RFC3339Nano, finishedAt); err == nil {
			sum.FinishedAt = t
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived graphs: %w", err)
	}
	return out, nil
}

// LogEntries returns the number of job_log rows recorded for jobID.
func (s *Store) LogEntries(ctx context.Context, jobID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM job_log WHERE job_id = ?;", jobID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count job_log: %w", err)
	}
	return n, nil
}
