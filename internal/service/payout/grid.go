package payout

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/models"
)

// Payout times are absolute calendar boundaries in the scheduler zone, not offsets from the investment start.
// HOURLY pays at minute 0 of every hour. DAILY, WEEKLY and MONTHLY all pay at local midnight.
//
// TODO: pay WEEKLY plans on the week start and MONTHLY plans on the first of month;
// per boundary amounts already assume those periods.

// NextBoundary returns the first boundary strictly after t
func NextBoundary(t time.Time, frequency string, loc *time.Location) (time.Time, error) {
	local := t.In(loc)

	switch frequency {
	case models.FrequencyHourly:
		next := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
		for !next.After(t) {
			next = next.Add(time.Hour)
		}
		return next, nil

	case models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyMonthly:
		return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc), nil

	default:
		return time.Time{}, fmt.Errorf("%w: %q", apperrors.ErrUnknownPayoutFrequency, frequency)
	}
}

// BoundariesBetween returns boundaries in (from, until] in ascending order
func BoundariesBetween(from time.Time, until time.Time, frequency string, loc *time.Location) ([]time.Time, error) {
	var boundaries []time.Time

	next, err := NextBoundary(from, frequency, loc)
	if err != nil {
		return nil, err
	}

	for !next.After(until) {
		boundaries = append(boundaries, next)

		next, err = NextBoundary(next, frequency, loc)
		if err != nil {
			return nil, err
		}
	}

	return boundaries, nil
}

// BoundariesPerMonth returns boundaries in a 30 day month as a fraction num/den
func BoundariesPerMonth(frequency string) (num int64, den int64, err error) {
	switch frequency {
	case models.FrequencyHourly:
		return 30 * 24, 1, nil
	case models.FrequencyDaily:
		return 30, 1, nil
	case models.FrequencyWeekly:
		return 30, 7, nil
	case models.FrequencyMonthly:
		return 1, 1, nil
	default:
		return 0, 0, fmt.Errorf("%w: %q", apperrors.ErrUnknownPayoutFrequency, frequency)
	}
}

// PerBoundaryAmount is the monthly yield of the principal split across the month boundaries
func PerBoundaryAmount(principal decimal.Decimal, yieldPercent decimal.Decimal, frequency string) (decimal.Decimal, error) {
	num, den, err := BoundariesPerMonth(frequency)
	if err != nil {
		return decimal.Zero, err
	}

	monthly := principal.Mul(yieldPercent).Div(decimal.NewFromInt(100))
	amount := monthly.Mul(decimal.NewFromInt(den)).Div(decimal.NewFromInt(num))

	return amount.Round(models.AmountPlaces), nil
}

// Reference ties a payout entry to one boundary of one investment
func Reference(investmentID uuid.UUID, boundary time.Time) string {
	return "payout:" + investmentID.String() + ":" + boundary.UTC().Format(time.RFC3339)
}
