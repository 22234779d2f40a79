package purchase

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/logger"
	"github.com/nkiryanov/yieldmart/internal/models"
	"github.com/nkiryanov/yieldmart/internal/repository"
	"github.com/nkiryanov/yieldmart/internal/repository/postgres"
	"github.com/nkiryanov/yieldmart/internal/service/commission"
	"github.com/nkiryanov/yieldmart/internal/service/ledger"
	"github.com/nkiryanov/yieldmart/internal/testutil"
)

func TestPurchase(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	type deps struct {
		storage repository.Storage
		ledger  *ledger.Service
		tx      pgx.Tx
	}

	inTx := func(t *testing.T, fn func(s *Service, d deps)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			ledgerService := ledger.NewService(storage)
			cascade := commission.NewCascade(commission.DefaultRules(), storage.User(), ledgerService, logger.NewNoOpLogger())
			fn(NewService(storage, cascade, logger.NewNoOpLogger()), deps{storage: storage, ledger: ledgerService, tx: tx})
		})
	}

	// Buyer first, every next user sponsors the previous
	createChain := func(t *testing.T, tx pgx.Tx, n int) []uuid.UUID {
		ids := make([]uuid.UUID, 0, n)
		for _, u := range testutil.CreateSponsorChain(t, tx, n) {
			ids = append(ids, u.ID)
		}
		return ids
	}

	createPlan := func(t *testing.T, tx pgx.Tx) uuid.UUID {
		plan := testutil.CreatePlan(t, tx, models.Plan{
			DurationDays:    10,
			PayoutFrequency: models.FrequencyHourly,
			MaxStake:        decimal.NewFromInt(5000),
		})
		return plan.ID
	}

	balance := func(t *testing.T, l *ledger.Service, accountID uuid.UUID) decimal.Decimal {
		wallet, err := l.GetWallet(t.Context(), accountID)
		require.NoError(t, err)
		return wallet.Balance
	}

	t.Run("commissionable purchase pays sponsors", func(t *testing.T) {
		inTx(t, func(s *Service, d deps) {
			ids := createChain(t, d.tx, 5)
			p := models.Purchase{ID: "order-1", BuyerID: ids[0], Amount: decimal.NewFromInt(1000), IsCommissionable: true}

			outcome, err := s.Complete(t.Context(), p)

			require.NoError(t, err)
			require.Nil(t, outcome.Investment)
			require.Len(t, outcome.Commissions.Credits, 3)
			require.True(t, balance(t, d.ledger, ids[1]).Equal(decimal.NewFromInt(100)))
			require.True(t, balance(t, d.ledger, ids[2]).Equal(decimal.NewFromInt(50)))
			require.True(t, balance(t, d.ledger, ids[3]).Equal(decimal.NewFromInt(20)))
			require.True(t, balance(t, d.ledger, ids[4]).IsZero())

			// Redelivery
			_, err = s.Complete(t.Context(), p)
			require.NoError(t, err)
			require.True(t, balance(t, d.ledger, ids[1]).Equal(decimal.NewFromInt(100)), "redelivered purchase must not pay twice")
		})
	})

	t.Run("plan purchase opens investment once", func(t *testing.T) {
		inTx(t, func(s *Service, d deps) {
			ids := createChain(t, d.tx, 1)
			planID := createPlan(t, d.tx)
			p := models.Purchase{ID: "order-2", BuyerID: ids[0], Amount: decimal.NewFromInt(1000), PlanID: &planID}

			first, err := s.Complete(t.Context(), p)
			require.NoError(t, err)
			require.NotNil(t, first.Investment)
			require.Equal(t, models.InvestmentActive, first.Investment.Status)
			require.True(t, first.Investment.EndAt.Equal(first.Investment.StartAt.AddDate(0, 0, 10)))

			second, err := s.Complete(t.Context(), p)
			require.NoError(t, err, "redelivery is not an error")
			require.Equal(t, first.Investment.ID, second.Investment.ID)
		})
	})

	t.Run("stake out of plan range", func(t *testing.T) {
		inTx(t, func(s *Service, d deps) {
			planID := createPlan(t, d.tx)
			p := models.Purchase{ID: "order-3", BuyerID: uuid.New(), Amount: decimal.NewFromInt(99), PlanID: &planID}

			_, err := s.Complete(t.Context(), p)

			require.ErrorIs(t, err, apperrors.ErrStakeOutOfRange)
		})
	})

	t.Run("unknown plan", func(t *testing.T) {
		inTx(t, func(s *Service, d deps) {
			planID := uuid.New()
			p := models.Purchase{ID: "order-4", BuyerID: uuid.New(), Amount: decimal.NewFromInt(1000), PlanID: &planID}

			_, err := s.Complete(t.Context(), p)

			require.ErrorIs(t, err, apperrors.ErrPlanNotFound)
		})
	})

	t.Run("invalid purchase", func(t *testing.T) {
		inTx(t, func(s *Service, d deps) {
			_, err := s.Complete(t.Context(), models.Purchase{BuyerID: uuid.New(), Amount: decimal.NewFromInt(1)})
			require.ErrorIs(t, err, apperrors.ErrEmptyReference)

			_, err = s.Complete(t.Context(), models.Purchase{ID: "order-5", BuyerID: uuid.New()})
			require.ErrorIs(t, err, apperrors.ErrInvalidAmount)
		})
	})
}
