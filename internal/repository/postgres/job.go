package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/models"
	"github.com/nkiryanov/yieldmart/internal/repository"
)

const (
	jobRunningEntityConstraint = "jobs_running_entity_key"
	jobDedupeConstraint        = "jobs_dedupe_key"
)

type JobRepo struct {
	DB DBTX
}

const jobColumns = `id, kind, version, queue, entity_id, dedupe_key, payload, status, attempts, max_attempts,
	run_at, lease_until, last_error, created_at, updated_at, finished_at`

// Insert job unless a waiting or running job has the same dedupe key
const insertJob = `-- name: InsertJob
INSERT INTO jobs (id, kind, version, queue, entity_id, dedupe_key, payload, status, attempts, max_attempts, run_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, 'QUEUED', 0, $8, $9, $10, $10)
ON CONFLICT (dedupe_key) WHERE status IN ('QUEUED', 'RUNNING') DO NOTHING
RETURNING ` + jobColumns

func (r *JobRepo) Enqueue(ctx context.Context, job models.Job) (models.Job, error) {
	job = withJobDefaults(job)

	// The conflicting job may finish between insert and lookup, so try twice
	for range 2 {
		rows, _ := r.DB.Query(ctx, insertJob, insertJobArgs(job)...)
		stored, err := pgx.CollectOneRow(rows, rowToJob)

		switch {
		case err == nil:
			return stored, nil
		case !errors.Is(err, pgx.ErrNoRows):
			return stored, fmt.Errorf("db error: %w", err)
		case job.DedupeKey == nil:
			return stored, errors.New("job without dedupe key was not inserted")
		}

		existing, err := r.getQueuedByDedupeKey(ctx, *job.DedupeKey)
		switch {
		case err == nil:
			return existing, apperrors.ErrJobAlreadyQueued
		case !errors.Is(err, apperrors.ErrJobNotFound):
			return existing, err
		}
	}

	return models.Job{}, apperrors.ErrJobAlreadyQueued
}

func (r *JobRepo) EnqueueBatch(ctx context.Context, jobs []models.Job) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, job := range jobs {
		batch.Queue(insertJob, insertJobArgs(withJobDefaults(job))...)
	}

	results := r.DB.SendBatch(ctx, batch)
	defer results.Close() // nolint:errcheck

	inserted := 0
	for range jobs {
		rows, err := results.Query()
		if err != nil {
			return inserted, fmt.Errorf("db error: %w", err)
		}
		n, err := pgx.CollectRows(rows, rowToJob)
		if err != nil {
			return inserted, fmt.Errorf("db error: %w", err)
		}
		inserted += len(n)
	}

	return inserted, nil
}

func (r *JobRepo) getQueuedByDedupeKey(ctx context.Context, dedupeKey string) (models.Job, error) {
	getJob := `SELECT ` + jobColumns + ` FROM jobs
	WHERE dedupe_key = $1 AND status IN ('QUEUED', 'RUNNING')
	`

	rows, _ := r.DB.Query(ctx, getJob, dedupeKey)
	job, err := pgx.CollectOneRow(rows, rowToJob)

	switch {
	case err == nil:
		return job, nil
	case errors.Is(err, pgx.ErrNoRows):
		return job, apperrors.ErrJobNotFound
	default:
		return job, fmt.Errorf("db error: %w", err)
	}
}

// Take oldest due job skipping rows locked by other workers
// and jobs whose (kind, entity) is already running
const claimJob = `-- name: ClaimJob
UPDATE jobs
SET status = 'RUNNING', attempts = attempts + 1, lease_until = $3, updated_at = $2
WHERE id = (
	SELECT j.id FROM jobs j
	WHERE j.status = 'QUEUED'
		AND j.queue = ANY($1)
		AND j.run_at <= $2
		AND (j.entity_id = '' OR NOT EXISTS (
			SELECT 1 FROM jobs r
			WHERE r.status = 'RUNNING' AND r.kind = j.kind AND r.entity_id = j.entity_id
		))
	ORDER BY j.run_at, j.created_at
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
RETURNING ` + jobColumns

func (r *JobRepo) ClaimJob(ctx context.Context, opts repository.ClaimJobOpts) (models.Job, error) {
	rows, _ := r.DB.Query(ctx, claimJob, opts.Queues, opts.Now, opts.Now.Add(opts.Lease))
	job, err := pgx.CollectOneRow(rows, rowToJob)

	switch {
	case err == nil:
		return job, nil
	case errors.Is(err, pgx.ErrNoRows):
		return job, apperrors.ErrNoJobAvailable
	case isUniqueViolation(err, jobRunningEntityConstraint):
		// Another worker claimed a job for the same entity concurrently
		return job, apperrors.ErrNoJobAvailable
	default:
		return job, fmt.Errorf("db error: %w", err)
	}
}

func (r *JobRepo) MarkSucceeded(ctx context.Context, jobID uuid.UUID, at time.Time) error {
	const markSucceeded = `-- name: MarkSucceeded
	UPDATE jobs
	SET status = 'SUCCEEDED', lease_until = NULL, finished_at = $2, updated_at = $2
	WHERE id = $1 AND status = 'RUNNING'
	`

	return r.execOnRunning(ctx, markSucceeded, jobID, at)
}

func (r *JobRepo) MarkRetry(ctx context.Context, jobID uuid.UUID, at time.Time, runAt time.Time, lastError string) error {
	const markRetry = `-- name: MarkRetry
	UPDATE jobs
	SET status = 'QUEUED', lease_until = NULL, run_at = $3, last_error = $4, updated_at = $2
	WHERE id = $1 AND status = 'RUNNING'
	`

	return r.execOnRunning(ctx, markRetry, jobID, at, runAt, lastError)
}

func (r *JobRepo) MarkFailed(ctx context.Context, jobID uuid.UUID, at time.Time, lastError string) error {
	const markFailed = `-- name: MarkFailed
	UPDATE jobs
	SET status = 'FAILED', lease_until = NULL, last_error = $3, finished_at = $2, updated_at = $2
	WHERE id = $1 AND status = 'RUNNING'
	`

	return r.execOnRunning(ctx, markFailed, jobID, at, lastError)
}

// Finishing a job is only valid while it is still RUNNING (lease not taken over)
func (r *JobRepo) execOnRunning(ctx context.Context, sql string, args ...any) error {
	tag, err := r.DB.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrJobNotFound
	}
	return nil
}

func (r *JobRepo) ReleaseExpired(ctx context.Context, now time.Time) ([]models.Job, error) {
	const releaseExpired = `-- name: ReleaseExpired
	UPDATE jobs
	SET status      = CASE WHEN attempts >= max_attempts THEN 'FAILED' ELSE 'QUEUED' END,
		finished_at = CASE WHEN attempts >= max_attempts THEN $1::timestamptz END,
		run_at      = $1,
		lease_until = NULL,
		last_error  = 'lease expired',
		updated_at  = $1
	WHERE status = 'RUNNING' AND lease_until < $1
	RETURNING ` + jobColumns

	rows, _ := r.DB.Query(ctx, releaseExpired, now)
	jobs, err := pgx.CollectRows(rows, rowToJob)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return jobs, nil
}

func (r *JobRepo) GetJob(ctx context.Context, jobID uuid.UUID) (models.Job, error) {
	getJob := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	rows, _ := r.DB.Query(ctx, getJob, jobID)
	job, err := pgx.CollectOneRow(rows, rowToJob)

	switch {
	case err == nil:
		return job, nil
	case errors.Is(err, pgx.ErrNoRows):
		return job, apperrors.ErrJobNotFound
	default:
		return job, fmt.Errorf("db error: %w", err)
	}
}

func (r *JobRepo) ListJobs(ctx context.Context, opts repository.ListJobsOpts) ([]models.Job, error) {
	listJobs := `SELECT ` + jobColumns + ` FROM jobs
	WHERE cardinality($1::text[]) = 0 OR status = ANY($1)
	ORDER BY updated_at DESC, id
	LIMIT $2
	`

	statuses := opts.Statuses
	if statuses == nil {
		statuses = []string{}
	}

	rows, _ := r.DB.Query(ctx, listJobs, statuses, opts.Limit)
	jobs, err := pgx.CollectRows(rows, rowToJob)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return jobs, nil
}

func (r *JobRepo) Requeue(ctx context.Context, jobID uuid.UUID, now time.Time) (models.Job, error) {
	requeue := `-- name: Requeue
	UPDATE jobs
	SET status = 'QUEUED', attempts = 0, run_at = $2, finished_at = NULL, updated_at = $2
	WHERE id = $1 AND status = 'FAILED'
	RETURNING ` + jobColumns

	rows, _ := r.DB.Query(ctx, requeue, jobID, now)
	job, err := pgx.CollectOneRow(rows, rowToJob)

	switch {
	case err == nil:
		return job, nil
	case errors.Is(err, pgx.ErrNoRows):
		return job, apperrors.ErrJobNotFound
	case isUniqueViolation(err, jobDedupeConstraint):
		return job, apperrors.ErrJobAlreadyQueued
	default:
		return job, fmt.Errorf("db error: %w", err)
	}
}

func withJobDefaults(job models.Job) models.Job {
	now := time.Now()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Version == 0 {
		job.Version = 1
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = models.DefaultJobMaxAttempts
	}
	if job.Queue == "" {
		job.Queue = models.DefaultQueue
	}
	if len(job.Payload) == 0 {
		job.Payload = json.RawMessage(`{}`)
	}
	if job.RunAt.IsZero() {
		job.RunAt = now
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	return job
}

func insertJobArgs(job models.Job) []any {
	return []any{job.ID, job.Kind, job.Version, job.Queue, job.EntityID, job.DedupeKey, job.Payload, job.MaxAttempts, job.RunAt, job.CreatedAt}
}

func rowToJob(row pgx.CollectableRow) (models.Job, error) {
	var j models.Job
	err := row.Scan(
		&j.ID, &j.Kind, &j.Version, &j.Queue, &j.EntityID, &j.DedupeKey, &j.Payload, &j.Status, &j.Attempts, &j.MaxAttempts,
		&j.RunAt, &j.LeaseUntil, &j.LastError, &j.CreatedAt, &j.UpdatedAt, &j.FinishedAt,
	)
	return j, err
}
