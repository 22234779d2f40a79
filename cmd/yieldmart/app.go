package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkiryanov/yieldmart/internal/db"
	"github.com/nkiryanov/yieldmart/internal/handlers"
	"github.com/nkiryanov/yieldmart/internal/logger"
	"github.com/nkiryanov/yieldmart/internal/repository/postgres"
	"github.com/nkiryanov/yieldmart/internal/service/campaign"
	"github.com/nkiryanov/yieldmart/internal/service/commission"
	"github.com/nkiryanov/yieldmart/internal/service/jobqueue"
	"github.com/nkiryanov/yieldmart/internal/service/ledger"
	"github.com/nkiryanov/yieldmart/internal/service/payout"
	"github.com/nkiryanov/yieldmart/internal/service/purchase"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger    logger.Logger
	pool      *pgxpool.Pool
	scheduler *payout.Scheduler
	processor *jobqueue.Processor
	poller    *campaign.Poller
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	location, err := c.PayoutLocation()
	if err != nil {
		return nil, err
	}

	rules := commission.DefaultRules()
	if c.CommissionRules != "" {
		rules, err = commission.LoadRules(c.CommissionRules)
		if err != nil {
			return nil, err
		}
	}

	// Connect to the database and run migrations
	logger.Info("Connecting to database", "dsn", c.DatabaseDSN)
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	ledgerService := ledger.NewService(storage)
	cascade := commission.NewCascade(rules, storage.User(), ledgerService, logger)
	purchaseService := purchase.NewService(storage, cascade, logger)
	jobs := jobqueue.NewClient(storage, c.JobMaxAttempts)
	dispatcher := campaign.NewDispatcher(storage, jobs, logger)

	// Background components
	scheduler := payout.NewScheduler(payout.Config{Interval: c.PayoutInterval, Location: location}, storage, ledgerService, logger)
	processor := jobqueue.NewProcessor(jobqueue.Config{CountWorkers: c.JobWorkers, PollInterval: c.JobPollInterval}, storage, logger)
	dispatcher.Register(processor)
	poller := campaign.NewPoller(c.CampaignPollInterval, storage, dispatcher, logger)

	router := handlers.NewRouter(handlers.Services{
		Wallets:     ledgerService,
		Investments: payout.NewReader(storage, location),
		Purchases:   purchaseService,
		Campaigns:   dispatcher,
		Jobs:        jobs,
	}, logger)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    router,
		logger:     logger,
		pool:       pool,
		scheduler:  scheduler,
		processor:  processor,
		poller:     poller,
	}, nil
}

// Run starts http server with background workers and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.pool.Close()

	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	stopped := []<-chan struct{}{
		s.scheduler.Process(srvCtx),
		s.processor.Process(srvCtx),
		s.poller.Process(srvCtx),
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	// In-flight jobs and payouts finish before the pool is closed
	for _, ch := range stopped {
		<-ch
	}
	s.logger.Info("Background workers stopped")

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
