// Package jobqueue runs durable jobs stored in postgres.
//
// A job moves QUEUED -> RUNNING on claim and then to SUCCEEDED, back to QUEUED for a retry,
// or to terminal FAILED once its attempts are used. Failed jobs stay in the table for operators.
package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/models"
	"github.com/nkiryanov/yieldmart/internal/repository"
)

type Request struct {
	Kind     string
	Queue    string // models.DefaultQueue if empty
	EntityID string // jobs with equal (Kind, EntityID) never run concurrently

	// Enqueue is a no-op while a QUEUED or RUNNING job has the same key
	DedupeKey string

	Payload     any
	RunAt       time.Time // now if zero
	MaxAttempts int       // client default if zero
}

type Client struct {
	storage     repository.Storage
	maxAttempts int
	now         func() time.Time
}

func NewClient(storage repository.Storage, maxAttempts int) *Client {
	if maxAttempts <= 0 {
		maxAttempts = models.DefaultJobMaxAttempts
	}
	return &Client{storage: storage, maxAttempts: maxAttempts, now: time.Now}
}

// Enqueue stores the job
// If an equal job waits or runs already it is returned with apperrors.ErrJobAlreadyQueued
func (c *Client) Enqueue(ctx context.Context, r Request) (models.Job, error) {
	job, err := c.build(r)
	if err != nil {
		return job, err
	}

	return c.storage.Job().Enqueue(ctx, job)
}

// EnqueueBatch stores jobs in one round trip and returns how many were new
func (c *Client) EnqueueBatch(ctx context.Context, requests []Request) (int, error) {
	jobs := make([]models.Job, 0, len(requests))
	for _, r := range requests {
		job, err := c.build(r)
		if err != nil {
			return 0, err
		}
		jobs = append(jobs, job)
	}

	return c.storage.Job().EnqueueBatch(ctx, jobs)
}

func (c *Client) Get(ctx context.Context, jobID uuid.UUID) (models.Job, error) {
	return c.storage.Job().GetJob(ctx, jobID)
}

// ListFailed returns terminally failed jobs, most recently failed first
func (c *Client) ListFailed(ctx context.Context, limit int) ([]models.Job, error) {
	return c.storage.Job().ListJobs(ctx, repository.ListJobsOpts{Statuses: []string{models.JobFailed}, Limit: limit})
}

// Retry puts a failed job back to the queue with fresh attempts
func (c *Client) Retry(ctx context.Context, jobID uuid.UUID) (models.Job, error) {
	return c.storage.Job().Requeue(ctx, jobID, c.now())
}

func (c *Client) build(r Request) (models.Job, error) {
	if r.Kind == "" {
		return models.Job{}, errors.New("job kind is required")
	}

	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return models.Job{}, fmt.Errorf("encode %s payload: %w", r.Kind, err)
	}

	job := models.Job{
		ID:          uuid.New(),
		Kind:        r.Kind,
		Version:     1,
		Queue:       r.Queue,
		EntityID:    r.EntityID,
		Payload:     payload,
		MaxAttempts: r.MaxAttempts,
		RunAt:       r.RunAt,
		CreatedAt:   c.now(),
	}
	if job.Queue == "" {
		job.Queue = models.DefaultQueue
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = c.maxAttempts
	}
	if job.RunAt.IsZero() {
		job.RunAt = job.CreatedAt
	}
	if r.DedupeKey != "" {
		key := r.DedupeKey
		job.DedupeKey = &key
	}

	return job, nil
}

// Decode job payload; malformed payload never gets better, so the error is permanent
func Decode[T any](job models.Job) (T, error) {
	var v T
	if err := json.Unmarshal(job.Payload, &v); err != nil {
		return v, Permanent(fmt.Errorf("decode %s payload: %w", job.Kind, err))
	}
	return v, nil
}

// IsAlreadyQueued reports whether enqueue was a dedupe no-op
func IsAlreadyQueued(err error) bool {
	return errors.Is(err, apperrors.ErrJobAlreadyQueued)
}
