package payout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/yieldmart/internal/models"
	"github.com/nkiryanov/yieldmart/internal/repository"
)

// InvestmentView is an investment with payout estimates computed from the grid
type InvestmentView struct {
	models.Investment

	PerBoundaryAmount decimal.Decimal
	NextPayoutAt      *time.Time // nil when no payout is ahead
}

// Reader serves investment reads without touching payout state
type Reader struct {
	storage  repository.Storage
	location *time.Location
	now      func() time.Time
}

func NewReader(storage repository.Storage, loc *time.Location) *Reader {
	if loc == nil {
		loc = time.UTC
	}
	return &Reader{storage: storage, location: loc, now: time.Now}
}

func (r *Reader) GetInvestment(ctx context.Context, investmentID uuid.UUID) (InvestmentView, error) {
	inv, err := r.storage.Investment().GetInvestment(ctx, investmentID)
	if err != nil {
		return InvestmentView{}, err
	}

	view := InvestmentView{Investment: inv}

	view.PerBoundaryAmount, err = PerBoundaryAmount(inv.Principal, inv.Plan.YieldPercent, inv.Plan.PayoutFrequency)
	if err != nil {
		return view, err
	}

	view.NextPayoutAt, err = NextPayout(inv, r.now(), r.location)
	return view, err
}

// NextPayout estimates the next boundary after both the paid through instant and now
func NextPayout(inv models.Investment, now time.Time, loc *time.Location) (*time.Time, error) {
	if inv.Status != models.InvestmentActive {
		return nil, nil
	}

	from := inv.PaidThrough()
	if now.After(from) {
		from = now
	}

	next, err := NextBoundary(from, inv.Plan.PayoutFrequency, loc)
	if err != nil {
		return nil, err
	}
	if next.After(inv.EndAt) {
		return nil, nil
	}

	return &next, nil
}
