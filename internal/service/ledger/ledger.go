// Package ledger is the only writer of account balances.
//
// Every balance change is one ledger entry applied in a transaction that locks the account row,
// checks the (account, reference) pair for a previous application and bumps the account version.
// Re-applying a reference returns the entry recorded first and leaves the balance untouched.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/metrics"
	"github.com/nkiryanov/yieldmart/internal/models"
	"github.com/nkiryanov/yieldmart/internal/repository"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Service struct {
	storage repository.Storage
	now     func() time.Time
}

func NewService(storage repository.Storage) *Service {
	return &Service{
		storage: storage,
		now:     time.Now,
	}
}

// Credit adds amount to the account creating the account on first use
func (s *Service) Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, kind string, reference string) (models.LedgerEntry, error) {
	if err := validate(amount, kind, reference); err != nil {
		return models.LedgerEntry{}, err
	}

	return s.apply(ctx, accountID, amount.Round(models.AmountPlaces), kind, reference)
}

// Debit subtracts amount from the account
// Fails with apperrors.ErrInsufficientFunds if the balance is lower than amount; nothing is recorded then
func (s *Service) Debit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, kind string, reference string) (models.LedgerEntry, error) {
	if err := validate(amount, kind, reference); err != nil {
		return models.LedgerEntry{}, err
	}

	return s.apply(ctx, accountID, amount.Round(models.AmountPlaces).Neg(), kind, reference)
}

func (s *Service) apply(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, kind string, reference string) (models.LedgerEntry, error) {
	var (
		entry  models.LedgerEntry
		replay bool
	)

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		ledger := storage.Ledger()

		if amount.IsPositive() {
			if err := ledger.EnsureAccount(ctx, accountID); err != nil {
				return err
			}
		}

		// Lock the account first: concurrent writes to the account queue up here
		account, err := ledger.GetAccount(ctx, accountID, true)
		if err != nil {
			return err
		}

		existing, err := ledger.GetEntryByReference(ctx, accountID, reference)
		switch {
		case err == nil:
			entry, replay = existing, true
			return nil
		case !errors.Is(err, apperrors.ErrLedgerEntryNotFound):
			return err
		}

		balance := account.Balance.Add(amount)
		if balance.IsNegative() {
			return apperrors.ErrInsufficientFunds
		}

		entry, err = ledger.CreateEntry(ctx, models.LedgerEntry{
			ID:           uuid.New(),
			AccountID:    accountID,
			Amount:       amount,
			Kind:         kind,
			Reference:    reference,
			BalanceAfter: balance,
			Status:       models.EntryStatusCompleted,
			CreatedAt:    s.now(),
		})
		if err != nil {
			return err
		}

		_, err = ledger.UpdateBalance(ctx, accountID, balance, account.Version)
		return err
	})

	switch {
	case err == nil && replay:
		metrics.LedgerReplays.Inc()
		return entry, nil
	case err == nil:
		metrics.LedgerEntries.WithLabelValues(kind).Inc()
		return entry, nil
	case errors.Is(err, apperrors.ErrDuplicateReference):
		// Entry committed by a concurrent writer wins
		existing, getErr := s.storage.Ledger().GetEntryByReference(ctx, accountID, reference)
		if getErr != nil {
			return entry, fmt.Errorf("replay lookup failed: %w", getErr)
		}
		metrics.LedgerReplays.Inc()
		return existing, nil
	case errors.Is(err, apperrors.ErrInsufficientFunds):
		metrics.LedgerInsufficientFunds.Inc()
		return entry, err
	default:
		return entry, err
	}
}

// GetWallet returns the account of the owner
// Accounts are created on first credit, so an unknown owner gets an empty wallet
func (s *Service) GetWallet(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	account, err := s.storage.Ledger().GetAccount(ctx, accountID, false)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, apperrors.ErrAccountNotFound):
		return models.Account{ID: accountID, Balance: decimal.Zero}, nil
	default:
		return account, err
	}
}

type Page struct {
	Entries    []models.LedgerEntry
	NextCursor string // empty when there are no more entries
}

// ListEntries returns entries newest first
// Limit outside 1..MaxPageSize falls back to DefaultPageSize
func (s *Service) ListEntries(ctx context.Context, accountID uuid.UUID, limit int, cursor string) (Page, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}

	opts := repository.ListEntriesOpts{Limit: limit + 1}
	if cursor != "" {
		c, err := decodeCursor(cursor)
		if err != nil {
			return Page{}, err
		}
		opts.BeforeCreatedAt = &c.CreatedAt
		opts.BeforeID = &c.ID
	}

	entries, err := s.storage.Ledger().ListEntries(ctx, accountID, opts)
	if err != nil {
		return Page{}, err
	}

	page := Page{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		last := page.Entries[limit-1]
		page.NextCursor = encodeCursor(pageCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return page, nil
}

// Reconcile checks that the stored balance equals the sum of completed entries
func (s *Service) Reconcile(ctx context.Context, accountID uuid.UUID) error {
	return s.storage.InTx(ctx, func(storage repository.Storage) error {
		account, err := storage.Ledger().GetAccount(ctx, accountID, true)
		if err != nil {
			return err
		}

		sum, err := storage.Ledger().SumCompleted(ctx, accountID)
		if err != nil {
			return err
		}

		if !sum.Equal(account.Balance) {
			return fmt.Errorf("%w: balance %s, entries sum %s", apperrors.ErrLedgerMismatch, account.Balance, sum)
		}
		return nil
	})
}

func validate(amount decimal.Decimal, kind string, reference string) error {
	switch {
	case !amount.Round(models.AmountPlaces).IsPositive():
		return apperrors.ErrInvalidAmount
	case reference == "":
		return apperrors.ErrEmptyReference
	case !models.IsEntryKind(kind):
		return apperrors.ErrUnknownEntryKind
	default:
		return nil
	}
}
