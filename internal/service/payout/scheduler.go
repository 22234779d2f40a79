package payout

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/yieldmart/internal/logger"
	"github.com/nkiryanov/yieldmart/internal/metrics"
	"github.com/nkiryanov/yieldmart/internal/models"
	"github.com/nkiryanov/yieldmart/internal/repository"
)

const (
	defaultInterval     = 5 * time.Minute
	defaultCountWorkers = 4
	defaultPageSize     = 100
	listRetries         = 3
)

type crediter interface {
	Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, kind string, reference string) (models.LedgerEntry, error)
}

type Config struct {
	// Tick interval
	Interval time.Duration

	// Zone the grid boundaries are computed in
	Location *time.Location

	// Investments processed concurrently
	CountWorkers int

	// Investments listed per query
	PageSize int

	// Clock, time.Now if not set
	Now func() time.Time
}

type Scheduler struct {
	interval     time.Duration
	location     *time.Location
	countWorkers int
	pageSize     int
	now          func() time.Time

	storage repository.Storage
	ledger  crediter
	logger  logger.Logger
}

func NewScheduler(c Config, storage repository.Storage, ledger crediter, l logger.Logger) *Scheduler {
	s := &Scheduler{
		interval:     c.Interval,
		location:     c.Location,
		countWorkers: c.CountWorkers,
		pageSize:     c.PageSize,
		now:          c.Now,
		storage:      storage,
		ledger:       ledger,
		logger:       l.With("component", "payout-scheduler"),
	}

	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.countWorkers <= 0 {
		s.countWorkers = defaultCountWorkers
	}
	if s.pageSize <= 0 {
		s.pageSize = defaultPageSize
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Process runs a tick right away and then on every interval until ctx is done
// Returned channel is closed when the scheduler stopped
func (s *Scheduler) Process(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	s.logger.Debug("Starting payout scheduler", "interval", s.interval, "location", s.location.String())

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			s.Tick(ctx)

			select {
			case <-ctx.Done():
				s.logger.Debug("Payout scheduler stopped by context")
				return
			case <-ticker.C:
			}
		}
	}()

	return idleStopped
}

// Tick pays every due boundary of every active investment
// Failures are isolated per investment and retried on the next tick
func (s *Scheduler) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	started := time.Now()
	defer func() { metrics.PayoutTickDuration.Observe(time.Since(started).Seconds()) }()

	now := s.now()
	in := make(chan models.Investment)

	var wg sync.WaitGroup
	for range s.countWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for inv := range in {
				if err := s.processInvestment(ctx, inv, now); err != nil {
					s.logger.Error("Failed to process investment payouts", "investment_id", inv.ID, "error", err)
				}
			}
		}()
	}

	s.produce(ctx, in)
	close(in)
	wg.Wait()
}

// Send all active investments page by page
func (s *Scheduler) produce(ctx context.Context, out chan<- models.Investment) {
	opts := repository.ListInvestmentsOpts{Limit: s.pageSize}

	for {
		var page []models.Investment

		list := func() error {
			var err error
			page, err = s.storage.Investment().ListActiveInvestments(ctx, opts)
			return err
		}
		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), listRetries), ctx)

		if err := backoff.Retry(list, policy); err != nil {
			s.logger.Error("Failed to list active investments", "error", err)
			return
		}

		for _, inv := range page {
			select {
			case <-ctx.Done():
				s.logger.Debug("Payout scheduler stopped by context while sending investments")
				return
			case out <- inv:
			}
		}

		if len(page) < opts.Limit {
			return
		}
		opts.AfterID = &page[len(page)-1].ID
	}
}
