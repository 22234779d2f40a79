package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/yieldmart/internal/models"
)

// User repository: users and the sponsor edges between them are owned by registration, read only here
type UserRepo interface {
	// If user not found must return apperrors.ErrUserNotFound
	GetUser(ctx context.Context, userID uuid.UUID) (models.User, error)

	// Return direct sponsor of the user
	// If user is a root (or unknown) must return apperrors.ErrSponsorNotFound
	GetSponsor(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}

type ListEntriesOpts struct {
	Limit int

	// Keyset position: return entries strictly older than (CreatedAt, ID)
	BeforeCreatedAt *time.Time
	BeforeID        *uuid.UUID
}

// Ledger repository
// Balance mutations are only allowed through the ledger service that wraps these calls in a transaction
type LedgerRepo interface {
	// Create zero balance account if it does not exist yet
	EnsureAccount(ctx context.Context, accountID uuid.UUID) error

	// Get account; when lock is true the row is locked until the transaction ends
	// If account not found must return apperrors.ErrAccountNotFound
	GetAccount(ctx context.Context, accountID uuid.UUID, lock bool) (models.Account, error)

	// Compare-and-swap balance update guarded by the account version
	// If version changed must return apperrors.ErrVersionConflict
	UpdateBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal, version int64) (models.Account, error)

	// Insert entry
	// If entry with (account, reference) exists must return apperrors.ErrDuplicateReference
	CreateEntry(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error)

	// If entry not found must return apperrors.ErrLedgerEntryNotFound
	GetEntryByReference(ctx context.Context, accountID uuid.UUID, reference string) (models.LedgerEntry, error)

	// List entries newest first
	ListEntries(ctx context.Context, accountID uuid.UUID, opts ListEntriesOpts) ([]models.LedgerEntry, error)

	// Sum of signed amounts of completed entries
	SumCompleted(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
}

type ListInvestmentsOpts struct {
	Limit   int
	AfterID *uuid.UUID
}

type InvestmentRepo interface {
	// If plan not found must return apperrors.ErrPlanNotFound
	GetPlan(ctx context.Context, planID uuid.UUID) (models.Plan, error)

	// Create investment
	// If investment for the purchase exists must return it with apperrors.ErrInvestmentAlreadyExists
	CreateInvestment(ctx context.Context, inv models.Investment) (models.Investment, error)

	// Get investment joined with its plan
	// If not found must return apperrors.ErrInvestmentNotFound
	GetInvestment(ctx context.Context, investmentID uuid.UUID) (models.Investment, error)

	// List ACTIVE investments joined with plans ordered by id
	ListActiveInvestments(ctx context.Context, opts ListInvestmentsOpts) ([]models.Investment, error)

	// Move last payout forward; never moves it backwards
	AdvanceLastPayout(ctx context.Context, investmentID uuid.UUID, at time.Time) error

	// Change status only if current status is 'from'
	// If status is not 'from' must return apperrors.ErrInvestmentStatusChanged
	SetInvestmentStatus(ctx context.Context, investmentID uuid.UUID, from string, to string) error
}

type ClaimJobOpts struct {
	Queues []string
	Now    time.Time
	Lease  time.Duration
}

type ListJobsOpts struct {
	Statuses []string
	Limit    int
}

type JobRepo interface {
	// Insert job
	// If a QUEUED or RUNNING job has the same dedupe key must return it with apperrors.ErrJobAlreadyQueued
	Enqueue(ctx context.Context, job models.Job) (models.Job, error)

	// Insert many jobs, silently skipping dedupe conflicts; returns inserted count
	EnqueueBatch(ctx context.Context, jobs []models.Job) (int, error)

	// Atomically take the oldest due QUEUED job and mark it RUNNING
	// A job is never claimed while another job with the same (kind, entity) is RUNNING
	// If nothing to claim must return apperrors.ErrNoJobAvailable
	ClaimJob(ctx context.Context, opts ClaimJobOpts) (models.Job, error)

	MarkSucceeded(ctx context.Context, jobID uuid.UUID, at time.Time) error
	MarkRetry(ctx context.Context, jobID uuid.UUID, at time.Time, runAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, jobID uuid.UUID, at time.Time, lastError string) error

	// Return RUNNING jobs with expired lease back to QUEUED, or to FAILED when no attempts left
	// Returns the released jobs in their new state
	ReleaseExpired(ctx context.Context, now time.Time) ([]models.Job, error)

	// If not found must return apperrors.ErrJobNotFound
	GetJob(ctx context.Context, jobID uuid.UUID) (models.Job, error)
	ListJobs(ctx context.Context, opts ListJobsOpts) ([]models.Job, error)

	// Put FAILED job back to QUEUED with attempts reset
	// If there is no FAILED job with the id must return apperrors.ErrJobNotFound
	Requeue(ctx context.Context, jobID uuid.UUID, now time.Time) (models.Job, error)
}

type CampaignRepo interface {
	// If not found must return apperrors.ErrCampaignNotFound
	GetCampaign(ctx context.Context, campaignID uuid.UUID) (models.Campaign, error)
	ListCampaigns(ctx context.Context, status string, limit int) ([]models.Campaign, error)
	SetCampaignStatus(ctx context.Context, campaignID uuid.UUID, status string) error

	// List recipients in status; registered users are joined
	ListRecipients(ctx context.Context, campaignID uuid.UUID, status string) ([]models.CampaignRecipient, error)
	CountRecipients(ctx context.Context, campaignID uuid.UUID, status string) (int, error)
	SetRecipientStatus(ctx context.Context, recipientID uuid.UUID, status string) error
}

type Storage interface {
	User() UserRepo
	Ledger() LedgerRepo
	Investment() InvestmentRepo
	Job() JobRepo
	Campaign() CampaignRepo

	// Run fn in transaction; nested calls use savepoints
	InTx(ctx context.Context, fn func(Storage) error) error
}
