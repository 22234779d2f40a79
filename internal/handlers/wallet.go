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
	"github.com/nkiryanov/yieldmart/internal/service/ledger"
)

func handleGetWallet(wallets walletService, l logger.Logger) http.HandlerFunc {
	type response struct {
		AccountID uuid.UUID       `json:"accountId"`
		Balance   decimal.Decimal `json:"balance"`
		Version   int64           `json:"version"`
		UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := uuidParam(w, r, "accountID")
		if !ok {
			return
		}

		account, err := wallets.GetWallet(r.Context(), accountID)
		if err != nil {
			l.Error("Failed to get wallet", "account_id", accountID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		res := response{AccountID: account.ID, Balance: account.Balance, Version: account.Version}
		if !account.UpdatedAt.IsZero() {
			res.UpdatedAt = &account.UpdatedAt
		}
		render.JSON(w, res)
	}
}

func handleListEntries(wallets walletService, l logger.Logger) http.HandlerFunc {
	type entry struct {
		ID           uuid.UUID       `json:"id"`
		Amount       decimal.Decimal `json:"amount"`
		Kind         string          `json:"kind"`
		Reference    string          `json:"reference"`
		BalanceAfter decimal.Decimal `json:"balanceAfter"`
		Status       string          `json:"status"`
		CreatedAt    time.Time       `json:"createdAt"`
	}

	type response struct {
		Entries    []entry `json:"entries"`
		NextCursor string  `json:"nextCursor,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := uuidParam(w, r, "accountID")
		if !ok {
			return
		}
		limit, ok := limitParam(w, r, ledger.MaxPageSize)
		if !ok {
			return
		}

		page, err := wallets.ListEntries(r.Context(), accountID, limit, r.URL.Query().Get("cursor"))

		switch {
		case err == nil:
			res := response{Entries: make([]entry, 0, len(page.Entries)), NextCursor: page.NextCursor}
			for _, e := range page.Entries {
				res.Entries = append(res.Entries, entry{
					ID:           e.ID,
					Amount:       e.Amount,
					Kind:         e.Kind,
					Reference:    e.Reference,
					BalanceAfter: e.BalanceAfter,
					Status:       e.Status,
					CreatedAt:    e.CreatedAt,
				})
			}
			render.JSON(w, res)
		case errors.Is(err, apperrors.ErrInvalidCursor):
			render.ServiceError(w, "Invalid cursor", http.StatusBadRequest)
		default:
			l.Error("Failed to list ledger entries", "account_id", accountID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}
