package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/models"
	"github.com/nkiryanov/yieldmart/internal/repository"
	"github.com/nkiryanov/yieldmart/internal/testutil"
)

func TestLedger(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx := func(t *testing.T, outerTx DBTX, fn func(pgx.Tx, repository.Storage)) {
		testutil.InTx(outerTx, t, func(innerTx pgx.Tx) {
			storage := NewStorage(innerTx)
			fn(innerTx, storage)
		})
	}

	entry := func(accountID uuid.UUID, amount int64, reference string, balanceAfter int64, createdAt time.Time) models.LedgerEntry {
		return models.LedgerEntry{
			ID:           uuid.New(),
			AccountID:    accountID,
			Amount:       decimal.NewFromInt(amount),
			Kind:         models.EntryKindManual,
			Reference:    reference,
			BalanceAfter: decimal.NewFromInt(balanceAfter),
			Status:       models.EntryStatusCompleted,
			CreatedAt:    createdAt,
		}
	}

	t.Run("EnsureAccount", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			accountID := uuid.New()

			err := storage.Ledger().EnsureAccount(t.Context(), accountID)
			require.NoError(t, err, "account has to be created ok")

			err = storage.Ledger().EnsureAccount(t.Context(), accountID)
			require.NoError(t, err, "ensuring existing account is a no-op")

			account, err := storage.Ledger().GetAccount(t.Context(), accountID, false)
			require.NoError(t, err)
			require.Equal(t, accountID, account.ID)
			require.True(t, account.Balance.IsZero(), "new account balance must be zero")
			require.EqualValues(t, 0, account.Version)
		})
	})

	t.Run("GetAccount not found", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			_, err := storage.Ledger().GetAccount(t.Context(), uuid.New(), true)

			require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
		})
	})

	t.Run("UpdateBalance", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			accountID := uuid.New()
			require.NoError(t, storage.Ledger().EnsureAccount(t.Context(), accountID))

			t.Run("version matches", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					account, err := storage.Ledger().UpdateBalance(t.Context(), accountID, decimal.NewFromInt(42), 0)

					require.NoError(t, err)
					require.True(t, account.Balance.Equal(decimal.NewFromInt(42)))
					require.EqualValues(t, 1, account.Version, "version must be bumped")
				})
			})

			t.Run("stale version", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Ledger().UpdateBalance(t.Context(), accountID, decimal.NewFromInt(42), 7)

					require.ErrorIs(t, err, apperrors.ErrVersionConflict)
				})
			})
		})
	})

	t.Run("CreateEntry", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			accountID := uuid.New()
			require.NoError(t, storage.Ledger().EnsureAccount(t.Context(), accountID))

			t.Run("create ok", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					e := entry(accountID, 100, "ref-1", 100, time.Now())

					created, err := storage.Ledger().CreateEntry(t.Context(), e)

					require.NoError(t, err)
					require.Equal(t, e.ID, created.ID)
					require.True(t, created.Amount.Equal(e.Amount))
					require.Equal(t, "ref-1", created.Reference)

					got, err := storage.Ledger().GetEntryByReference(t.Context(), accountID, "ref-1")
					require.NoError(t, err)
					require.Equal(t, e.ID, got.ID)
				})
			})

			t.Run("duplicate reference", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Ledger().CreateEntry(t.Context(), entry(accountID, 100, "ref-dup", 100, time.Now()))
					require.NoError(t, err)

					_, err = storage.Ledger().CreateEntry(t.Context(), entry(accountID, 100, "ref-dup", 200, time.Now()))

					require.ErrorIs(t, err, apperrors.ErrDuplicateReference)
				})
			})

			t.Run("same reference on other account ok", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					otherID := uuid.New()
					require.NoError(t, storage.Ledger().EnsureAccount(t.Context(), otherID))

					_, err := storage.Ledger().CreateEntry(t.Context(), entry(accountID, 1, "shared", 1, time.Now()))
					require.NoError(t, err)
					_, err = storage.Ledger().CreateEntry(t.Context(), entry(otherID, 1, "shared", 1, time.Now()))
					require.NoError(t, err)
				})
			})

			t.Run("reference not found", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Ledger().GetEntryByReference(t.Context(), accountID, "missing")

					require.ErrorIs(t, err, apperrors.ErrLedgerEntryNotFound)
				})
			})
		})
	})

	t.Run("ListEntries and SumCompleted", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			accountID := uuid.New()
			require.NoError(t, storage.Ledger().EnsureAccount(t.Context(), accountID))

			base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
			for i := range 5 {
				_, err := storage.Ledger().CreateEntry(t.Context(), entry(accountID, int64(i+1), uuid.NewString(), 0, base.Add(time.Duration(i)*time.Minute)))
				require.NoError(t, err)
			}

			sum, err := storage.Ledger().SumCompleted(t.Context(), accountID)
			require.NoError(t, err)
			require.True(t, sum.Equal(decimal.NewFromInt(15)), "sum of 1..5 expected, got %s", sum)

			firstPage, err := storage.Ledger().ListEntries(t.Context(), accountID, repository.ListEntriesOpts{Limit: 3})
			require.NoError(t, err)
			require.Len(t, firstPage, 3)
			require.True(t, firstPage[0].Amount.Equal(decimal.NewFromInt(5)), "newest entry first")

			last := firstPage[len(firstPage)-1]
			secondPage, err := storage.Ledger().ListEntries(t.Context(), accountID, repository.ListEntriesOpts{
				Limit:           3,
				BeforeCreatedAt: &last.CreatedAt,
				BeforeID:        &last.ID,
			})
			require.NoError(t, err)
			require.Len(t, secondPage, 2)
			require.True(t, secondPage[0].Amount.Equal(decimal.NewFromInt(2)))
			require.True(t, secondPage[1].Amount.Equal(decimal.NewFromInt(1)))
		})
	})

	t.Run("SumCompleted of empty account", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			sum, err := storage.Ledger().SumCompleted(t.Context(), uuid.New())

			require.NoError(t, err)
			require.True(t, sum.IsZero())
		})
	})
}
