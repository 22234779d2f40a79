package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/handlers/render"
	"github.com/nkiryanov/yieldmart/internal/logger"
	"github.com/nkiryanov/yieldmart/internal/models"
)

// Purchase completion is delivered at least once; every repeat answers the same
func handleCompletePurchase(purchases purchaseService, l logger.Logger) http.HandlerFunc {
	type request struct {
		PurchaseID       string          `json:"purchaseId" validate:"required,max=128"`
		BuyerID          uuid.UUID       `json:"buyerId" validate:"required"`
		Amount           decimal.Decimal `json:"amount" validate:"positive_decimal"`
		IsCommissionable bool            `json:"isCommissionable"`
		PlanID           *uuid.UUID      `json:"planId"`
	}

	type commission struct {
		Level      int             `json:"level"`
		AncestorID uuid.UUID       `json:"ancestorId"`
		Amount     decimal.Decimal `json:"amount"`
	}

	type response struct {
		PurchaseID   string       `json:"purchaseId"`
		InvestmentID *uuid.UUID   `json:"investmentId,omitempty"`
		Commissions  []commission `json:"commissions"`
		StopReason   string       `json:"stopReason,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 4096)
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		outcome, err := purchases.Complete(r.Context(), models.Purchase{
			ID:               req.PurchaseID,
			BuyerID:          req.BuyerID,
			Amount:           req.Amount,
			IsCommissionable: req.IsCommissionable,
			PlanID:           req.PlanID,
		})

		switch {
		case err == nil:
			res := response{
				PurchaseID:  req.PurchaseID,
				Commissions: make([]commission, 0, len(outcome.Commissions.Credits)),
				StopReason:  outcome.Commissions.StopReason,
			}
			if outcome.Investment != nil {
				res.InvestmentID = &outcome.Investment.ID
			}
			for _, c := range outcome.Commissions.Credits {
				res.Commissions = append(res.Commissions, commission{Level: c.Level, AncestorID: c.AncestorID, Amount: c.Amount})
			}
			render.JSON(w, res)
		case errors.Is(err, apperrors.ErrInvalidAmount):
			render.ServiceError(w, "Amount must be positive", http.StatusUnprocessableEntity)
		case errors.Is(err, apperrors.ErrPlanNotFound):
			render.ServiceError(w, "Plan not found", http.StatusUnprocessableEntity)
		case errors.Is(err, apperrors.ErrStakeOutOfRange):
			render.ServiceError(w, "Amount is out of plan stake range", http.StatusUnprocessableEntity)
		default:
			// Caller redelivers; the already applied part is not repeated
			l.Error("Failed to complete purchase", "purchase_id", req.PurchaseID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}
