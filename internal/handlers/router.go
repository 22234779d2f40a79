package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nkiryanov/yieldmart/internal/handlers/middleware"
	"github.com/nkiryanov/yieldmart/internal/logger"
	"github.com/nkiryanov/yieldmart/internal/models"
	"github.com/nkiryanov/yieldmart/internal/service/ledger"
	"github.com/nkiryanov/yieldmart/internal/service/payout"
	"github.com/nkiryanov/yieldmart/internal/service/purchase"
)

type walletService interface {
	// Unknown account has to be returned as an empty wallet
	GetWallet(ctx context.Context, accountID uuid.UUID) (models.Account, error)

	// Has to return apperrors.ErrInvalidCursor on a malformed cursor
	ListEntries(ctx context.Context, accountID uuid.UUID, limit int, cursor string) (ledger.Page, error)
}

type investmentService interface {
	// Has to return apperrors.ErrInvestmentNotFound if not found
	GetInvestment(ctx context.Context, investmentID uuid.UUID) (payout.InvestmentView, error)
}

type purchaseService interface {
	Complete(ctx context.Context, p models.Purchase) (purchase.Outcome, error)
}

type campaignService interface {
	// Has to return apperrors.ErrCampaignNotFound if not found
	// and the pending job with apperrors.ErrJobAlreadyQueued if dispatch is queued already
	EnqueueDispatch(ctx context.Context, campaignID uuid.UUID) (models.Job, error)
}

type jobService interface {
	ListFailed(ctx context.Context, limit int) ([]models.Job, error)

	// Has to return apperrors.ErrJobNotFound if there is no FAILED job with the id
	Retry(ctx context.Context, jobID uuid.UUID) (models.Job, error)
}

type Services struct {
	Wallets     walletService
	Investments investmentService
	Purchases   purchaseService
	Campaigns   campaignService
	Jobs        jobService
}

// NewRouter mounts public read API under /api and producer/operator API under /internal
func NewRouter(s Services, l logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger(l))

	r.Get("/health", handleHealth())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/wallets/{accountID}", handleGetWallet(s.Wallets, l))
		r.Get("/wallets/{accountID}/entries", handleListEntries(s.Wallets, l))
		r.Get("/investments/{investmentID}", handleGetInvestment(s.Investments, l))
	})

	r.Route("/internal", func(r chi.Router) {
		r.Post("/purchases", handleCompletePurchase(s.Purchases, l))
		r.Post("/campaigns/{campaignID}/dispatch", handleDispatchCampaign(s.Campaigns, l))
		r.Get("/jobs/failed", handleListFailedJobs(s.Jobs, l))
		r.Post("/jobs/{jobID}/retry", handleRetryJob(s.Jobs, l))
	})

	return r
}
