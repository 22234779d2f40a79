package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/logger"
	"github.com/nkiryanov/yieldmart/internal/metrics"
	"github.com/nkiryanov/yieldmart/internal/models"
	"github.com/nkiryanov/yieldmart/internal/repository"
)

const (
	defaultCountWorkers   = 4
	defaultPollInterval   = time.Second
	defaultReapInterval   = 30 * time.Second
	defaultLease          = 5 * time.Minute
	defaultHandlerTimeout = 4 * time.Minute
	defaultRetryBase      = 5 * time.Second
	defaultRetryMax       = 10 * time.Minute
)

// Handler executes one job
// Returning an error wrapped with Permanent fails the job without further attempts
type Handler func(ctx context.Context, job models.Job) error

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func IsPermanent(err error) bool {
	var permanent *backoff.PermanentError
	return errors.As(err, &permanent)
}

type Config struct {
	CountWorkers int
	Queues       []string

	// Idle wait when the queue is empty
	PollInterval time.Duration

	// How often expired leases are returned to the queue
	ReapInterval time.Duration

	// Claimed job is owned by the worker until the lease expires
	Lease time.Duration

	HandlerTimeout time.Duration

	// Retry delay doubles from RetryBase per attempt up to RetryMax
	RetryBase time.Duration
	RetryMax  time.Duration

	// Clock, time.Now if not set
	Now func() time.Time
}

type Processor struct {
	cfg      Config
	storage  repository.Storage
	logger   logger.Logger
	handlers map[string]Handler
	mu       sync.RWMutex
}

func NewProcessor(c Config, storage repository.Storage, l logger.Logger) *Processor {
	if c.CountWorkers <= 0 {
		c.CountWorkers = defaultCountWorkers
	}
	if len(c.Queues) == 0 {
		c.Queues = []string{models.DefaultQueue}
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = defaultReapInterval
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = defaultHandlerTimeout
	}
	if c.Lease <= c.HandlerTimeout {
		c.Lease = max(defaultLease, c.HandlerTimeout+time.Minute)
	}
	if c.RetryBase <= 0 {
		c.RetryBase = defaultRetryBase
	}
	if c.RetryMax < c.RetryBase {
		c.RetryMax = max(defaultRetryMax, c.RetryBase)
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	return &Processor{
		cfg:      c,
		storage:  storage,
		logger:   l.With("component", "job-processor"),
		handlers: map[string]Handler{},
	}
}

func (p *Processor) Register(kind string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = h
}

func (p *Processor) handler(kind string) (Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[kind]
	return h, ok
}

// Process starts workers and the lease reaper
// In-flight jobs are finished before the returned channel is closed
func (p *Processor) Process(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting job processor", "workers", p.cfg.CountWorkers, "queues", p.cfg.Queues)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.CountWorkers; i++ {
		wg.Add(1)
		go func() {
			p.worker(ctx)
			wg.Done()
		}()
	}

	wg.Add(1)
	go func() {
		p.reaper(ctx)
		wg.Done()
	}()

	go func() {
		defer close(idleStopped)
		wg.Wait()
		p.logger.Debug("Job processor stopped")
	}()

	return idleStopped
}

func (p *Processor) worker(ctx context.Context) {
	// Backs off on store errors only; an empty queue waits PollInterval
	errBackoff := backoff.NewExponentialBackOff()
	errBackoff.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return
		}

		ran, err := p.RunNext(ctx)

		var wait time.Duration
		switch {
		case err != nil:
			wait = errBackoff.NextBackOff()
			p.logger.Error("Failed to claim job", "error", err, "retry_in", wait)
		case ran:
			errBackoff.Reset()
			continue
		default:
			errBackoff.Reset()
			wait = p.cfg.PollInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (p *Processor) reaper(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.releaseExpired(ctx); err != nil {
				p.logger.Error("Failed to release expired jobs", "error", err)
			}
		}
	}
}

// releaseExpired takes back jobs whose worker lost its lease and returns the ones
// that ran out of attempts
func (p *Processor) releaseExpired(ctx context.Context) ([]models.Job, error) {
	released, err := p.storage.Job().ReleaseExpired(ctx, p.cfg.Now())
	if err != nil {
		return nil, err
	}

	var exhausted []models.Job
	for _, job := range released {
		if job.Status != models.JobFailed {
			continue
		}
		exhausted = append(exhausted, job)
		metrics.JobsExhausted.WithLabelValues(job.Kind).Inc()
		metrics.JobsFinished.WithLabelValues(job.Kind, "failed").Inc()
		p.logger.Error("Job lease expired, no attempts left",
			"job_id", job.ID, "kind", job.Kind, "entity_id", job.EntityID,
			"error", apperrors.ErrJobAttemptsExhausted, "max_attempts", job.MaxAttempts)
	}

	if requeued := len(released) - len(exhausted); requeued > 0 {
		p.logger.Warn("Released jobs with expired lease", "count", requeued)
	}

	return exhausted, nil
}

// RunNext claims one due job and runs it to a recorded outcome
// Returns false when nothing was due. Handler failures are recorded on the job, not returned.
func (p *Processor) RunNext(ctx context.Context) (bool, error) {
	job, err := p.storage.Job().ClaimJob(ctx, repository.ClaimJobOpts{
		Queues: p.cfg.Queues,
		Now:    p.cfg.Now(),
		Lease:  p.cfg.Lease,
	})
	switch {
	case errors.Is(err, apperrors.ErrNoJobAvailable):
		return false, nil
	case err != nil:
		return false, err
	}

	log := p.logger.With("job_id", job.ID, "kind", job.Kind, "entity_id", job.EntityID, "attempt", job.Attempts)
	log.Debug("Job claimed")

	// Claimed job runs to completion even if shutdown requested
	runCtx := context.WithoutCancel(ctx)

	started := time.Now()
	handleErr := p.run(runCtx, job)
	metrics.JobDuration.WithLabelValues(job.Kind).Observe(time.Since(started).Seconds())

	now := p.cfg.Now()
	var (
		outcome string
		markErr error
	)

	switch {
	case handleErr == nil:
		outcome = "succeeded"
		markErr = p.storage.Job().MarkSucceeded(runCtx, job.ID, now)

	case IsPermanent(handleErr):
		outcome = "failed"
		log.Error("Job failed permanently", "error", handleErr)
		markErr = p.storage.Job().MarkFailed(runCtx, job.ID, now, handleErr.Error())

	case job.Attempts >= job.MaxAttempts:
		outcome = "failed"
		metrics.JobsExhausted.WithLabelValues(job.Kind).Inc()
		log.Error("Job failed, no attempts left", "error", fmt.Errorf("%w: %w", apperrors.ErrJobAttemptsExhausted, handleErr), "max_attempts", job.MaxAttempts)
		markErr = p.storage.Job().MarkFailed(runCtx, job.ID, now, handleErr.Error())

	default:
		outcome = "retried"
		runAt := now.Add(p.retryDelay(job.Attempts))
		log.Warn("Job failed, will retry", "error", handleErr, "run_at", runAt)
		markErr = p.storage.Job().MarkRetry(runCtx, job.ID, now, runAt, handleErr.Error())
	}

	metrics.JobsFinished.WithLabelValues(job.Kind, outcome).Inc()

	switch {
	case errors.Is(markErr, apperrors.ErrJobNotFound):
		log.Warn("Job lease lost before outcome recorded", "outcome", outcome)
	case markErr != nil:
		// Lease expiry brings the job back
		log.Error("Failed to record job outcome", "outcome", outcome, "error", markErr)
	}

	return true, nil
}

func (p *Processor) run(ctx context.Context, job models.Job) (err error) {
	h, ok := p.handler(job.Kind)
	if !ok {
		return Permanent(fmt.Errorf("%w: %q", apperrors.ErrUnknownJobKind, job.Kind))
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.HandlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()

	return h(ctx, job)
}

// Delay before attempt n+1: RetryBase doubled per failed attempt, capped at RetryMax
func (p *Processor) retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.RetryBase
	b.MaxInterval = p.cfg.RetryMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempts && delay < p.cfg.RetryMax; i++ {
		delay = b.NextBackOff()
	}
	return min(delay, p.cfg.RetryMax)
}
