package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/opentriagem/triagem/pkg/models"
)

const jobColumns = `job_id, case_id, job_type, status, run_after, attempts, max_attempts,
	last_error, payload, claimed_by, created_at, updated_at`

// JobRepo persists the durable job queue.
type JobRepo struct {
	db *sql.DB
}

func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{db: db}
}

func scanJob(row interface{ Scan(...any) error }) (*models.Job, error) {
	var j models.Job
	var payload []byte
	err := row.Scan(
		&j.JobID, &j.CaseID, &j.JobType, &j.Status, &j.RunAfter, &j.Attempts, &j.MaxAttempts,
		&j.LastError, &payload, &j.ClaimedBy, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Payload = json.RawMessage(payload)
	return &j, nil
}

// Enqueue inserts a queued job due at runAfter with the default retry
// budget. A nil payload is stored as an empty JSON object.
func (r *JobRepo) Enqueue(ctx context.Context, caseID *string, jobType models.JobType, payload json.RawMessage, runAfter time.Time) (*models.Job, error) {
	return r.EnqueueWithMaxAttempts(ctx, caseID, jobType, payload, runAfter, models.DefaultMaxAttempts)
}

// EnqueueWithMaxAttempts inserts a queued job with an explicit retry budget.
// max_attempts=1 means the first failure dead-letters immediately.
func (r *JobRepo) EnqueueWithMaxAttempts(ctx context.Context, caseID *string, jobType models.JobType,
	payload json.RawMessage, runAfter time.Time, maxAttempts int) (*models.Job, error) {
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	q := `INSERT INTO jobs (case_id, job_type, status, run_after, max_attempts, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + jobColumns
	j, err := scanJob(r.db.QueryRowContext(ctx, q,
		caseID, jobType, models.JobQueued, runAfter, maxAttempts, []byte(payload)))
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	return j, nil
}

// ClaimDue atomically moves up to limit due queued jobs to running and stamps
// them with the claimer id. Concurrent claimers never receive the same job;
// the SKIP LOCKED subquery makes losers skip rows a winner holds.
func (r *JobRepo) ClaimDue(ctx context.Context, claimedBy string, limit int) ([]*models.Job, error) {
	q := `UPDATE jobs SET status = $1, claimed_by = $2, updated_at = now()
		WHERE job_id IN (
			SELECT job_id FROM jobs
			WHERE status = $3 AND run_after <= now()
			ORDER BY job_id
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns
	rows, err := r.db.QueryContext(ctx, q, models.JobRunning, claimedBy, models.JobQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed job: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// RETURNING does not guarantee subquery order.
	sort.Slice(out, func(i, k int) bool { return out[i].JobID < out[k].JobID })
	return out, nil
}

// MarkDone finishes a running job.
func (r *JobRepo) MarkDone(ctx context.Context, jobID int64) error {
	const q = `UPDATE jobs SET status = $2, updated_at = now() WHERE job_id = $1`
	res, err := r.db.ExecContext(ctx, q, jobID, models.JobDone)
	if err != nil {
		return fmt.Errorf("mark job %d done: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ScheduleRetry re-queues a failed attempt: bumps the counter, records the
// error and sets the next due time. Returns the updated row so the caller
// can audit the new attempt count.
func (r *JobRepo) ScheduleRetry(ctx context.Context, jobID int64, lastError string, runAfter time.Time) (*models.Job, error) {
	q := `UPDATE jobs SET status = $2, attempts = attempts + 1, last_error = $3,
			run_after = $4, updated_at = now()
		WHERE job_id = $1
		RETURNING ` + jobColumns
	j, err := scanJob(r.db.QueryRowContext(ctx, q, jobID, models.JobQueued, lastError, runAfter))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("schedule retry for job %d: %w", jobID, err)
	}
	return j, nil
}

// MarkDead parks a job permanently after its final attempt.
func (r *JobRepo) MarkDead(ctx context.Context, jobID int64, lastError string) (*models.Job, error) {
	q := `UPDATE jobs SET status = $2, attempts = attempts + 1, last_error = $3, updated_at = now()
		WHERE job_id = $1
		RETURNING ` + jobColumns
	j, err := scanJob(r.db.QueryRowContext(ctx, q, jobID, models.JobDead, lastError))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mark job %d dead: %w", jobID, err)
	}
	return j, nil
}

// HasActiveJob reports whether a queued or running job of the given type
// exists for the case. Recovery uses it to avoid double-enqueueing.
func (r *JobRepo) HasActiveJob(ctx context.Context, caseID string, jobType models.JobType) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM jobs
		WHERE case_id = $1 AND job_type = $2 AND status IN ($3, $4)
	)`
	var exists bool
	err := r.db.QueryRowContext(ctx, q, caseID, jobType, models.JobQueued, models.JobRunning).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active job for case %s: %w", caseID, err)
	}
	return exists, nil
}

// ResetRunning re-queues every running job. Called once at startup before
// workers begin; any running row is an orphan from a crashed process.
func (r *JobRepo) ResetRunning(ctx context.Context) (int64, error) {
	const q = `UPDATE jobs SET status = $1, claimed_by = NULL, updated_at = now()
		WHERE status = $2`
	res, err := r.db.ExecContext(ctx, q, models.JobQueued, models.JobRunning)
	if err != nil {
		return 0, fmt.Errorf("reset running jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Get loads one job by id.
func (r *JobRepo) Get(ctx context.Context, jobID int64) (*models.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`
	j, err := scanJob(r.db.QueryRowContext(ctx, q, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job %d: %w", jobID, err)
	}
	return j, nil
}

// CountByStatus returns job counts grouped by status.
func (r *JobRepo) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM jobs GROUP BY status`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var st models.JobStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

// ListDead returns the most recent dead jobs, capped at limit.
func (r *JobRepo) ListDead(ctx context.Context, limit int) ([]*models.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE status = $1
		ORDER BY updated_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, models.JobDead, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dead job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
