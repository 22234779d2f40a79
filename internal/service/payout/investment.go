package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/metrics"
	"github.com/nkiryanov/yieldmart/internal/models"
)

// Credit every boundary in (paid through, min(now, end)] and complete the investment once it ended
// Shutdown may interrupt between boundaries; every boundary is credited with its own reference so the next tick resumes
func (s *Scheduler) processInvestment(ctx context.Context, inv models.Investment, now time.Time) error {
	until := now
	if inv.EndAt.Before(until) {
		until = inv.EndAt
	}

	boundaries, err := BoundariesBetween(inv.PaidThrough(), until, inv.Plan.PayoutFrequency, s.location)
	if err != nil {
		return err
	}

	amount, err := PerBoundaryAmount(inv.Principal, inv.Plan.YieldPercent, inv.Plan.PayoutFrequency)
	if err != nil {
		return err
	}

	// Started credit or status update finishes even if shutdown requested
	opCtx := context.WithoutCancel(ctx)

	var (
		paidThrough *time.Time
		creditErr   error
	)
	for _, boundary := range boundaries {
		if ctx.Err() != nil {
			break
		}

		if amount.IsPositive() {
			_, err := s.ledger.Credit(opCtx, inv.OwnerID, amount, models.EntryKindPayout, Reference(inv.ID, boundary))
			if err != nil {
				metrics.PayoutBoundaries.WithLabelValues("failed").Inc()
				creditErr = fmt.Errorf("credit boundary %s: %w", boundary.Format(time.RFC3339), err)
				break
			}
			metrics.PayoutBoundaries.WithLabelValues("credited").Inc()
		}

		b := boundary
		paidThrough = &b
	}

	if paidThrough != nil {
		if err := s.storage.Investment().AdvanceLastPayout(opCtx, inv.ID, *paidThrough); err != nil {
			return errors.Join(creditErr, fmt.Errorf("advance last payout: %w", err))
		}
		s.logger.Debug("Investment paid", "investment_id", inv.ID, "paid_through", *paidThrough, "amount", amount)
	}

	switch {
	case creditErr != nil:
		return creditErr
	case ctx.Err() != nil:
		return nil
	case now.Before(inv.EndAt):
		return nil
	}

	err = s.storage.Investment().SetInvestmentStatus(opCtx, inv.ID, models.InvestmentActive, models.InvestmentCompleted)
	switch {
	case err == nil:
		metrics.PayoutInvestmentsCompleted.Inc()
		s.logger.Info("Investment completed", "investment_id", inv.ID)
		return nil
	case errors.Is(err, apperrors.ErrInvestmentStatusChanged):
		// Cancelled or suspended concurrently
		return nil
	default:
		return err
	}
}
