package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/handlers/render"
	"github.com/nkiryanov/yieldmart/internal/logger"
)

func handleGetInvestment(investments investmentService, l logger.Logger) http.HandlerFunc {
	type plan struct {
		ID              uuid.UUID       `json:"id"`
		Name            string          `json:"name"`
		DurationDays    int             `json:"durationDays"`
		YieldPercent    decimal.Decimal `json:"yieldPercent"`
		PayoutFrequency string          `json:"payoutFrequency"`
	}

	type response struct {
		ID              uuid.UUID       `json:"id"`
		OwnerID         uuid.UUID       `json:"ownerId"`
		PurchaseID      string          `json:"purchaseId"`
		Status          string          `json:"status"`
		Principal       decimal.Decimal `json:"principal"`
		Plan            plan            `json:"plan"`
		StartAt         time.Time       `json:"startAt"`
		EndAt           time.Time       `json:"endAt"`
		LastPayoutAt    *time.Time      `json:"lastPayoutAt"`
		PerPayoutAmount decimal.Decimal `json:"perPayoutAmount"`
		NextPayoutAt    *time.Time      `json:"nextPayoutAt"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		investmentID, ok := uuidParam(w, r, "investmentID")
		if !ok {
			return
		}

		view, err := investments.GetInvestment(r.Context(), investmentID)

		switch {
		case err == nil:
			render.JSON(w, response{
				ID:         view.ID,
				OwnerID:    view.OwnerID,
				PurchaseID: view.PurchaseID,
				Status:     view.Status,
				Principal:  view.Principal,
				Plan: plan{
					ID:              view.Plan.ID,
					Name:            view.Plan.Name,
					DurationDays:    view.Plan.DurationDays,
					YieldPercent:    view.Plan.YieldPercent,
					PayoutFrequency: view.Plan.PayoutFrequency,
				},
				StartAt:         view.StartAt,
				EndAt:           view.EndAt,
				LastPayoutAt:    view.LastPayoutAt,
				PerPayoutAmount: view.PerBoundaryAmount,
				NextPayoutAt:    view.NextPayoutAt,
			})
		case errors.Is(err, apperrors.ErrInvestmentNotFound):
			render.ServiceError(w, "Investment not found", http.StatusNotFound)
		default:
			l.Error("Failed to get investment", "investment_id", investmentID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}
