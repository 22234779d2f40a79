package jobqueue

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/models"
	"github.com/nkiryanov/yieldmart/internal/repository"
)

// In memory job table following the postgres repository semantics
type memJobs struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]models.Job
}

type memStorage struct {
	repository.Storage
	jobs *memJobs
}

func newMemStorage() *memStorage {
	return &memStorage{jobs: &memJobs{jobs: map[uuid.UUID]models.Job{}}}
}

func (s *memStorage) Job() repository.JobRepo {
	return s.jobs
}

func (m *memJobs) get(id uuid.UUID) models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

func (m *memJobs) Enqueue(_ context.Context, job models.Job) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(job)
}

func (m *memJobs) insert(job models.Job) (models.Job, error) {
	if job.DedupeKey != nil {
		for _, j := range m.jobs {
			if j.DedupeKey != nil && *j.DedupeKey == *job.DedupeKey && (j.Status == models.JobQueued || j.Status == models.JobRunning) {
				return j, apperrors.ErrJobAlreadyQueued
			}
		}
	}
	job.Status = models.JobQueued
	job.UpdatedAt = job.CreatedAt
	m.jobs[job.ID] = job
	return job, nil
}

func (m *memJobs) EnqueueBatch(_ context.Context, jobs []models.Job) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, job := range jobs {
		if _, err := m.insert(job); err == nil {
			n++
		}
	}
	return n, nil
}

func (m *memJobs) ClaimJob(_ context.Context, opts repository.ClaimJobOpts) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	running := map[[2]string]bool{}
	var due []models.Job
	for _, j := range m.jobs {
		switch {
		case j.Status == models.JobRunning:
			running[[2]string{j.Kind, j.EntityID}] = true
		case j.Status == models.JobQueued && slices.Contains(opts.Queues, j.Queue) && !j.RunAt.After(opts.Now):
			due = append(due, j)
		}
	}
	sort.Slice(due, func(a, b int) bool {
		if !due[a].RunAt.Equal(due[b].RunAt) {
			return due[a].RunAt.Before(due[b].RunAt)
		}
		return due[a].CreatedAt.Before(due[b].CreatedAt)
	})

	for _, j := range due {
		if j.EntityID != "" && running[[2]string{j.Kind, j.EntityID}] {
			continue
		}
		lease := opts.Now.Add(opts.Lease)
		j.Status = models.JobRunning
		j.Attempts++
		j.LeaseUntil = &lease
		m.jobs[j.ID] = j
		return j, nil
	}

	return models.Job{}, apperrors.ErrNoJobAvailable
}

func (m *memJobs) finish(id uuid.UUID, fn func(*models.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok || j.Status != models.JobRunning {
		return apperrors.ErrJobNotFound
	}
	j.LeaseUntil = nil
	fn(&j)
	m.jobs[id] = j
	return nil
}

func (m *memJobs) MarkSucceeded(_ context.Context, id uuid.UUID, at time.Time) error {
	return m.finish(id, func(j *models.Job) {
		j.Status = models.JobSucceeded
		j.FinishedAt = &at
	})
}

func (m *memJobs) MarkRetry(_ context.Context, id uuid.UUID, at time.Time, runAt time.Time, lastError string) error {
	return m.finish(id, func(j *models.Job) {
		j.Status = models.JobQueued
		j.UpdatedAt = at
		j.RunAt = runAt
		j.LastError = &lastError
	})
}

func (m *memJobs) MarkFailed(_ context.Context, id uuid.UUID, at time.Time, lastError string) error {
	return m.finish(id, func(j *models.Job) {
		j.Status = models.JobFailed
		j.FinishedAt = &at
		j.LastError = &lastError
	})
}

func (m *memJobs) ReleaseExpired(_ context.Context, now time.Time) ([]models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var released []models.Job
	for id, j := range m.jobs {
		if j.Status != models.JobRunning || j.LeaseUntil == nil || !j.LeaseUntil.Before(now) {
			continue
		}
		j.Status = models.JobQueued
		if j.Attempts >= j.MaxAttempts {
			j.Status = models.JobFailed
			j.FinishedAt = &now
		}
		j.LeaseUntil = nil
		j.UpdatedAt = now
		m.jobs[id] = j
		released = append(released, j)
	}
	return released, nil
}

func (m *memJobs) GetJob(_ context.Context, id uuid.UUID) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return j, apperrors.ErrJobNotFound
	}
	return j, nil
}

func (m *memJobs) ListJobs(_ context.Context, opts repository.ListJobsOpts) ([]models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var jobs []models.Job
	for _, j := range m.jobs {
		if len(opts.Statuses) == 0 || slices.Contains(opts.Statuses, j.Status) {
			jobs = append(jobs, j)
		}
	}
	if len(jobs) > opts.Limit {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

func (m *memJobs) Requeue(_ context.Context, id uuid.UUID, now time.Time) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok || j.Status != models.JobFailed {
		return j, apperrors.ErrJobNotFound
	}
	j.Status = models.JobQueued
	j.Attempts = 0
	j.RunAt = now
	j.FinishedAt = nil
	m.jobs[id] = j
	return j, nil
}
