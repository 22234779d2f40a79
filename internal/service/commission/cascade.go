// Package commission pays sponsors of a buyer a share of each commissionable purchase.
package commission

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/logger"
	"github.com/nkiryanov/yieldmart/internal/metrics"
	"github.com/nkiryanov/yieldmart/internal/models"
	"github.com/nkiryanov/yieldmart/internal/repository"
)

// Why the walk up the sponsor chain ended
const (
	StopRoot     = "root"
	StopMaxDepth = "max_depth"
	StopCycle    = "cycle"
)

type crediter interface {
	Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, kind string, reference string) (models.LedgerEntry, error)
}

type Credit struct {
	Level      int
	AncestorID uuid.UUID
	Amount     decimal.Decimal
	Entry      models.LedgerEntry
}

type Result struct {
	Credits    []Credit
	StopReason string
}

type Cascade struct {
	rules  Rules
	users  repository.UserRepo
	ledger crediter
	logger logger.Logger
}

func NewCascade(rules Rules, users repository.UserRepo, ledger crediter, l logger.Logger) *Cascade {
	return &Cascade{
		rules:  rules,
		users:  users,
		ledger: ledger,
		logger: l.With("component", "commission-cascade"),
	}
}

// Run credits every paid level of the buyer's sponsor chain
// A failed credit does not stop the walk; failures are returned joined after the walk.
// Safe to run again for the same purchase: every credit carries a reference derived from (purchase, ancestor, level)
func (c *Cascade) Run(ctx context.Context, p models.Purchase) (Result, error) {
	var result Result

	if !p.IsCommissionable {
		return result, nil
	}
	if !p.Amount.IsPositive() {
		return result, apperrors.ErrInvalidAmount
	}

	log := c.logger.With("purchase_id", p.ID, "buyer_id", p.BuyerID)

	// Buyer is visited too, so a chain leading back to the buyer never pays the buyer
	visited := map[uuid.UUID]struct{}{p.BuyerID: {}}
	current := p.BuyerID

	var errs []error
	for level := 1; ; level++ {
		sponsorID, err := c.users.GetSponsor(ctx, current)

		switch {
		case errors.Is(err, apperrors.ErrSponsorNotFound):
			result.StopReason = StopRoot
		case err != nil:
			return result, errors.Join(append(errs, fmt.Errorf("get sponsor of %s: %w", current, err))...)
		case level > c.rules.MaxDepth:
			result.StopReason = StopMaxDepth
			log.Debug("Sponsor chain is deeper than commission levels", "error", apperrors.ErrTraversalDepthExceeded, "max_depth", c.rules.MaxDepth)
		default:
			if _, seen := visited[sponsorID]; seen {
				result.StopReason = StopCycle
				log.Warn("Sponsor chain has a cycle, walk stopped", "error", apperrors.ErrSponsorCycle, "level", level, "sponsor_id", sponsorID)
			}
		}

		if result.StopReason != "" {
			break
		}

		visited[sponsorID] = struct{}{}
		current = sponsorID

		credit, paid, err := c.pay(ctx, p, sponsorID, level)
		switch {
		case err != nil:
			log.Error("Failed to credit commission", "level", level, "sponsor_id", sponsorID, "error", err)
			errs = append(errs, err)
		case paid:
			result.Credits = append(result.Credits, credit)
		}
	}

	metrics.CommissionCascadeStops.WithLabelValues(result.StopReason).Inc()

	return result, errors.Join(errs...)
}

func (c *Cascade) pay(ctx context.Context, p models.Purchase, ancestorID uuid.UUID, level int) (Credit, bool, error) {
	percent, ok := c.rules.Percent(level)
	if !ok {
		return Credit{}, false, nil
	}

	amount := p.Amount.Mul(percent).Div(decimal.NewFromInt(100)).Round(models.AmountPlaces)
	if !amount.IsPositive() {
		return Credit{}, false, nil
	}

	entry, err := c.ledger.Credit(ctx, ancestorID, amount, models.EntryKindCommission, Reference(p.ID, ancestorID, level))
	if err != nil {
		return Credit{}, false, fmt.Errorf("level %d: %w", level, err)
	}

	metrics.CommissionCredits.WithLabelValues(strconv.Itoa(level)).Inc()

	return Credit{Level: level, AncestorID: ancestorID, Amount: amount, Entry: entry}, true, nil
}

// Reference ties a commission entry to one level of one purchase
func Reference(purchaseID string, ancestorID uuid.UUID, level int) string {
	return "commission:" + purchaseID + ":" + ancestorID.String() + ":" + strconv.Itoa(level)
}
