package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/vk/gridci/internal/model"
)

// PostgresStore persists runs in Postgres via sqlx. The schema is owned by
// the SQL migrations under migrations/.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore opens and pings a Postgres connection.
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, errors.Wrap(err, "opening postgres connection")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "pinging postgres")
	}
	return &PostgresStore{db: db}, nil
}

// CreateRun implements Store.
func (s *PostgresStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO runs (workflow_name, run_number, event, ref, sha, concurrency_group, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		run.WorkflowName, run.RunNumber, run.Event, run.Ref, run.SHA,
		run.ConcurrencyGroup, run.Status, run.CreatedAt).Scan(&run.ID)
	return errors.Wrap(err, "create run")
}

// GetRun implements Store.
func (s *PostgresStore) GetRun(ctx context.Context, id int64) (*model.Run, error) {
	var run model.Run
	err := s.db.GetContext(ctx, &run, `SELECT * FROM runs WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get run %d", id)
	}
	return &run, nil
}

// ListRuns implements Store.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]*model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	runs := []*model.Run{}
	err := s.db.SelectContext(ctx, &runs, `
		SELECT * FROM runs ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	return runs, nil
}

// UpdateRunStatus implements Store.
func (s *PostgresStore) UpdateRunStatus(ctx context.Context, id int64, status model.Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			status = $1,
			started_at = CASE WHEN $1 = 'running' AND started_at IS NULL THEN CURRENT_TIMESTAMP ELSE started_at END,
			finished_at = CASE WHEN $1 IN ('succeeded', 'failed', 'cancelled', 'skipped') AND finished_at IS NULL THEN CURRENT_TIMESTAMP ELSE finished_at END
		WHERE id = $2`,
		string(status), id)
	if err != nil {
		return errors.Wrapf(err, "update run %d status", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// NextRunNumber implements Store. The counter row is upserted atomically so
// concurrent run creation never hands out the same number twice.
func (s *PostgresStore) NextRunNumber(ctx context.Context, workflowName string) (int64, error) {
	var number int64
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO run_counters (workflow_name, last_number)
		VALUES ($1, 1)
		ON CONFLICT (workflow_name)
		DO UPDATE SET last_number = run_counters.last_number + 1
		RETURNING last_number`,
		workflowName).Scan(&number)
	return number, errors.Wrapf(err, "next run number for %s", workflowName)
}

// CreateJobRun implements Store.
func (s *PostgresStore) CreateJobRun(ctx context.Context, jr *model.JobRun) error {
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO job_runs (run_id, name, status, uses_ref, params, outputs, error_msg, attempts, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		jr.RunID, jr.Name, jr.Status, jr.UsesRef, jr.Params, jr.Outputs,
		jr.Error, jr.Attempts, jr.StartedAt, jr.FinishedAt).Scan(&jr.ID)
	return errors.Wrapf(err, "create job run %s", jr.Name)
}

// UpdateJobRun implements Store.
func (s *PostgresStore) UpdateJobRun(ctx context.Context, jr *model.JobRun) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_runs SET
			status = $1, params = $2, outputs = $3, error_msg = $4,
			attempts = $5, started_at = $6, finished_at = $7
		WHERE id = $8`,
		jr.Status, jr.Params, jr.Outputs, jr.Error,
		jr.Attempts, jr.StartedAt, jr.FinishedAt, jr.ID)
	if err != nil {
		return errors.Wrapf(err, "update job run %d", jr.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetJobRuns implements Store.
func (s *PostgresStore) GetJobRuns(ctx context.Context, runID int64) ([]*model.JobRun, error) {
	jobRuns := []*model.JobRun{}
	err := s.db.SelectContext(ctx, &jobRuns, `
		SELECT * FROM job_runs WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "get job runs for run %d", runID)
	}
	return jobRuns, nil
}

// CancelPendingRuns implements Store.
func (s *PostgresStore) CancelPendingRuns(ctx context.Context, group string, exceptID int64) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `
		UPDATE runs SET status = 'cancelled', finished_at = CURRENT_TIMESTAMP
		WHERE concurrency_group = $1 AND status = 'pending' AND id <> $2
		RETURNING id`, group, exceptID)
	if err != nil {
		return nil, errors.Wrapf(err, "cancel pending runs in group %s", group)
	}
	return ids, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
