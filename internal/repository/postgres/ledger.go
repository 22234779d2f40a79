package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/models"
	"github.com/nkiryanov/yieldmart/internal/repository"
)

const ledgerReferenceConstraint = "ledger_entries_account_reference_key"

type LedgerRepo struct {
	DB DBTX
}

func (r *LedgerRepo) EnsureAccount(ctx context.Context, accountID uuid.UUID) error {
	const ensureAccount = `
	INSERT INTO accounts (id, balance, version)
	VALUES ($1, 0, 0)
	ON CONFLICT (id) DO NOTHING
	`

	_, err := r.DB.Exec(ctx, ensureAccount, accountID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *LedgerRepo) GetAccount(ctx context.Context, accountID uuid.UUID, lock bool) (models.Account, error) {
	getAccount := `
	SELECT id, balance, version, created_at, updated_at FROM accounts
	WHERE id = $1
	`
	if lock {
		getAccount += " FOR UPDATE"
	}

	rows, _ := r.DB.Query(ctx, getAccount, accountID)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

func (r *LedgerRepo) UpdateBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal, version int64) (models.Account, error) {
	const updateBalance = `
	UPDATE accounts
	SET balance = $2, version = version + 1, updated_at = now()
	WHERE id = $1 AND version = $3
	RETURNING id, balance, version, created_at, updated_at
	`

	rows, _ := r.DB.Query(ctx, updateBalance, accountID, balance, version)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrVersionConflict
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

func (r *LedgerRepo) CreateEntry(ctx context.Context, e models.LedgerEntry) (models.LedgerEntry, error) {
	const createEntry = `
	INSERT INTO ledger_entries (id, account_id, amount, kind, reference, balance_after, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id, account_id, amount, kind, reference, balance_after, status, created_at
	`

	rows, _ := r.DB.Query(ctx, createEntry, e.ID, e.AccountID, e.Amount, e.Kind, e.Reference, e.BalanceAfter, e.Status, e.CreatedAt)
	entry, err := pgx.CollectOneRow(rows, rowToEntry)

	switch {
	case err == nil:
		return entry, nil
	case isUniqueViolation(err, ledgerReferenceConstraint):
		return entry, apperrors.ErrDuplicateReference
	default:
		return entry, fmt.Errorf("db error: %w", err)
	}
}

func (r *LedgerRepo) GetEntryByReference(ctx context.Context, accountID uuid.UUID, reference string) (models.LedgerEntry, error) {
	const getEntry = `
	SELECT id, account_id, amount, kind, reference, balance_after, status, created_at FROM ledger_entries
	WHERE account_id = $1 AND reference = $2
	`

	rows, _ := r.DB.Query(ctx, getEntry, accountID, reference)
	entry, err := pgx.CollectOneRow(rows, rowToEntry)

	switch {
	case err == nil:
		return entry, nil
	case errors.Is(err, pgx.ErrNoRows):
		return entry, apperrors.ErrLedgerEntryNotFound
	default:
		return entry, fmt.Errorf("db error: %w", err)
	}
}

func (r *LedgerRepo) ListEntries(ctx context.Context, accountID uuid.UUID, opts repository.ListEntriesOpts) ([]models.LedgerEntry, error) {
	const listEntries = `
	SELECT id, account_id, amount, kind, reference, balance_after, status, created_at FROM ledger_entries
	WHERE account_id = $1
		AND ($2::timestamptz IS NULL OR (created_at, id) < ($2, $3::uuid))
	ORDER BY created_at DESC, id DESC
	LIMIT $4
	`

	// Row comparison needs a non-null id even when no cursor given
	beforeID := uuid.Nil
	if opts.BeforeID != nil {
		beforeID = *opts.BeforeID
	}

	rows, _ := r.DB.Query(ctx, listEntries, accountID, opts.BeforeCreatedAt, beforeID, opts.Limit)
	entries, err := pgx.CollectRows(rows, rowToEntry)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return entries, nil
}

func (r *LedgerRepo) SumCompleted(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	const sumCompleted = `
	SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
	WHERE account_id = $1 AND status = 'COMPLETED'
	`

	var sum decimal.Decimal
	err := r.DB.QueryRow(ctx, sumCompleted, accountID).Scan(&sum)
	if err != nil {
		return sum, fmt.Errorf("db error: %w", err)
	}

	return sum, nil
}

func rowToAccount(row pgx.CollectableRow) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Balance, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func rowToEntry(row pgx.CollectableRow) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(&e.ID, &e.AccountID, &e.Amount, &e.Kind, &e.Reference, &e.BalanceAfter, &e.Status, &e.CreatedAt)
	return e, err
}
