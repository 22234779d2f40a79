package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/models"
	"github.com/nkiryanov/yieldmart/internal/repository"
)

type InvestmentRepo struct {
	DB DBTX
}

const getPlan = `-- name: GetPlan
SELECT id, name, duration_days, yield_percent, payout_frequency, min_stake, max_stake FROM plans
WHERE id = $1
`

func (r *InvestmentRepo) GetPlan(ctx context.Context, planID uuid.UUID) (models.Plan, error) {
	rows, _ := r.DB.Query(ctx, getPlan, planID)
	plan, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.Plan, error) {
		var p models.Plan
		err := row.Scan(&p.ID, &p.Name, &p.DurationDays, &p.YieldPercent, &p.PayoutFrequency, &p.MinStake, &p.MaxStake)
		return p, err
	})

	switch {
	case err == nil:
		return plan, nil
	case errors.Is(err, pgx.ErrNoRows):
		return plan, apperrors.ErrPlanNotFound
	default:
		return plan, fmt.Errorf("db error: %w", err)
	}
}

// Create investment
// If investment for the purchase already exists return it as is
const createInvestment = `-- name: CreateInvestment
WITH insert_investment AS (
	INSERT INTO investments (id, owner_id, plan_id, purchase_id, principal, status, start_at, end_at, last_payout_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (purchase_id) DO NOTHING
	RETURNING id, owner_id, plan_id, purchase_id, principal, status, start_at, end_at, last_payout_at, created_at, updated_at
)
SELECT * FROM insert_investment
UNION
SELECT id, owner_id, plan_id, purchase_id, principal, status, start_at, end_at, last_payout_at, created_at, updated_at
FROM investments WHERE purchase_id = $4
`

func (r *InvestmentRepo) CreateInvestment(ctx context.Context, inv models.Investment) (models.Investment, error) {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.Status == "" {
		inv.Status = models.InvestmentActive
	}

	rows, _ := r.DB.Query(ctx, createInvestment,
		inv.ID, inv.OwnerID, inv.PlanID, inv.PurchaseID, inv.Principal, inv.Status, inv.StartAt, inv.EndAt, inv.LastPayoutAt)
	stored, err := pgx.CollectOneRow(rows, rowToInvestment)

	switch {
	case err != nil:
		return stored, fmt.Errorf("db error: %w", err)
	case stored.ID != inv.ID:
		return stored, apperrors.ErrInvestmentAlreadyExists
	default:
		return stored, nil
	}
}

const investmentWithPlanColumns = `
	i.id, i.owner_id, i.plan_id, i.purchase_id, i.principal, i.status, i.start_at, i.end_at, i.last_payout_at, i.created_at, i.updated_at,
	p.id, p.name, p.duration_days, p.yield_percent, p.payout_frequency, p.min_stake, p.max_stake
`

func (r *InvestmentRepo) GetInvestment(ctx context.Context, investmentID uuid.UUID) (models.Investment, error) {
	getInvestment := `SELECT` + investmentWithPlanColumns + `
	FROM investments i JOIN plans p ON p.id = i.plan_id
	WHERE i.id = $1
	`

	rows, _ := r.DB.Query(ctx, getInvestment, investmentID)
	inv, err := pgx.CollectOneRow(rows, rowToInvestmentWithPlan)

	switch {
	case err == nil:
		return inv, nil
	case errors.Is(err, pgx.ErrNoRows):
		return inv, apperrors.ErrInvestmentNotFound
	default:
		return inv, fmt.Errorf("db error: %w", err)
	}
}

func (r *InvestmentRepo) ListActiveInvestments(ctx context.Context, opts repository.ListInvestmentsOpts) ([]models.Investment, error) {
	listActive := `SELECT` + investmentWithPlanColumns + `
	FROM investments i JOIN plans p ON p.id = i.plan_id
	WHERE i.status = 'ACTIVE' AND ($1::uuid IS NULL OR i.id > $1)
	ORDER BY i.id
	LIMIT $2
	`

	rows, _ := r.DB.Query(ctx, listActive, opts.AfterID, opts.Limit)
	investments, err := pgx.CollectRows(rows, rowToInvestmentWithPlan)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return investments, nil
}

func (r *InvestmentRepo) AdvanceLastPayout(ctx context.Context, investmentID uuid.UUID, at time.Time) error {
	const advance = `-- name: AdvanceLastPayout
	UPDATE investments
	SET last_payout_at = $2, updated_at = now()
	WHERE id = $1 AND (last_payout_at IS NULL OR last_payout_at < $2)
	`

	_, err := r.DB.Exec(ctx, advance, investmentID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *InvestmentRepo) SetInvestmentStatus(ctx context.Context, investmentID uuid.UUID, from string, to string) error {
	const setStatus = `-- name: SetInvestmentStatus
	UPDATE investments
	SET status = $3, updated_at = now()
	WHERE id = $1 AND status = $2
	`

	tag, err := r.DB.Exec(ctx, setStatus, investmentID, from, to)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrInvestmentStatusChanged
	}

	return nil
}

func rowToInvestment(row pgx.CollectableRow) (models.Investment, error) {
	var i models.Investment
	err := row.Scan(&i.ID, &i.OwnerID, &i.PlanID, &i.PurchaseID, &i.Principal, &i.Status, &i.StartAt, &i.EndAt, &i.LastPayoutAt, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

func rowToInvestmentWithPlan(row pgx.CollectableRow) (models.Investment, error) {
	var i models.Investment
	p := &i.Plan
	err := row.Scan(
		&i.ID, &i.OwnerID, &i.PlanID, &i.PurchaseID, &i.Principal, &i.Status, &i.StartAt, &i.EndAt, &i.LastPayoutAt, &i.CreatedAt, &i.UpdatedAt,
		&p.ID, &p.Name, &p.DurationDays, &p.YieldPercent, &p.PayoutFrequency, &p.MinStake, &p.MaxStake,
	)
	return i, err
}
