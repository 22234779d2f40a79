// Package purchase handles purchase completion events.
// Events arrive at least once; handling the same purchase again changes nothing.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/logger"
	"github.com/nkiryanov/yieldmart/internal/models"
	"github.com/nkiryanov/yieldmart/internal/repository"
	"github.com/nkiryanov/yieldmart/internal/service/commission"
)

type cascade interface {
	Run(ctx context.Context, p models.Purchase) (commission.Result, error)
}

type Outcome struct {
	Investment  *models.Investment // set when the purchase bought a plan stake
	Commissions commission.Result
}

type Service struct {
	storage repository.Storage
	cascade cascade
	logger  logger.Logger
	now     func() time.Time
}

func NewService(storage repository.Storage, cascade cascade, l logger.Logger) *Service {
	return &Service{
		storage: storage,
		cascade: cascade,
		logger:  l.With("component", "purchase"),
		now:     time.Now,
	}
}

// Complete opens the investment for a plan purchase and runs the commission cascade
func (s *Service) Complete(ctx context.Context, p models.Purchase) (Outcome, error) {
	var outcome Outcome

	if p.ID == "" {
		return outcome, apperrors.ErrEmptyReference
	}
	if !p.Amount.IsPositive() {
		return outcome, apperrors.ErrInvalidAmount
	}

	if p.PlanID != nil {
		inv, err := s.openInvestment(ctx, p)
		if err != nil {
			return outcome, err
		}
		outcome.Investment = &inv
	}

	result, err := s.cascade.Run(ctx, p)
	outcome.Commissions = result
	if err != nil {
		return outcome, fmt.Errorf("commission cascade: %w", err)
	}

	return outcome, nil
}

func (s *Service) openInvestment(ctx context.Context, p models.Purchase) (models.Investment, error) {
	plan, err := s.storage.Investment().GetPlan(ctx, *p.PlanID)
	if err != nil {
		return models.Investment{}, err
	}

	if p.Amount.LessThan(plan.MinStake) || p.Amount.GreaterThan(plan.MaxStake) {
		return models.Investment{}, fmt.Errorf("%w: %s not in [%s, %s]", apperrors.ErrStakeOutOfRange, p.Amount, plan.MinStake, plan.MaxStake)
	}

	start := s.now()
	inv, err := s.storage.Investment().CreateInvestment(ctx, models.Investment{
		OwnerID:    p.BuyerID,
		PlanID:     plan.ID,
		PurchaseID: p.ID,
		Principal:  p.Amount.Round(models.AmountPlaces),
		Status:     models.InvestmentActive,
		StartAt:    start,
		EndAt:      start.AddDate(0, 0, plan.DurationDays),
	})

	switch {
	case err == nil:
		s.logger.Info("Investment opened", "investment_id", inv.ID, "purchase_id", p.ID, "plan_id", plan.ID)
	case errors.Is(err, apperrors.ErrInvestmentAlreadyExists):
		s.logger.Debug("Investment for purchase already opened", "investment_id", inv.ID, "purchase_id", p.ID)
	default:
		return inv, err
	}

	inv.Plan = plan
	return inv, nil
}
