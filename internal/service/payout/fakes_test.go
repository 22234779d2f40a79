package payout

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/models"
	"github.com/nkiryanov/yieldmart/internal/repository"
)

type mockCrediter struct {
	mock.Mock
}

func (m *mockCrediter) Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, kind string, reference string) (models.LedgerEntry, error) {
	args := m.Called(ctx, accountID, amount, kind, reference)
	return args.Get(0).(models.LedgerEntry), args.Error(1)
}

// In memory investments; only the investment repository is used by the scheduler
type fakeStorage struct {
	repository.Storage

	mu          sync.Mutex
	investments map[uuid.UUID]models.Investment
}

func newFakeStorage(investments ...models.Investment) *fakeStorage {
	s := &fakeStorage{investments: map[uuid.UUID]models.Investment{}}
	for _, inv := range investments {
		s.investments[inv.ID] = inv
	}
	return s
}

func (s *fakeStorage) Investment() repository.InvestmentRepo {
	return &fakeInvestments{s: s}
}

func (s *fakeStorage) get(id uuid.UUID) models.Investment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.investments[id]
}

type fakeInvestments struct {
	repository.InvestmentRepo
	s *fakeStorage
}

func (f *fakeInvestments) ListActiveInvestments(_ context.Context, opts repository.ListInvestmentsOpts) ([]models.Investment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	var active []models.Investment
	for _, inv := range f.s.investments {
		if inv.Status != models.InvestmentActive {
			continue
		}
		if opts.AfterID != nil && inv.ID.String() <= opts.AfterID.String() {
			continue
		}
		active = append(active, inv)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID.String() < active[j].ID.String() })

	if len(active) > opts.Limit {
		active = active[:opts.Limit]
	}
	return active, nil
}

func (f *fakeInvestments) GetInvestment(_ context.Context, id uuid.UUID) (models.Investment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	inv, ok := f.s.investments[id]
	if !ok {
		return inv, apperrors.ErrInvestmentNotFound
	}
	return inv, nil
}

func (f *fakeInvestments) AdvanceLastPayout(_ context.Context, id uuid.UUID, at time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	inv := f.s.investments[id]
	if inv.LastPayoutAt == nil || inv.LastPayoutAt.Before(at) {
		inv.LastPayoutAt = &at
	}
	f.s.investments[id] = inv
	return nil
}

func (f *fakeInvestments) SetInvestmentStatus(_ context.Context, id uuid.UUID, from string, to string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	inv := f.s.investments[id]
	if inv.Status != from {
		return apperrors.ErrInvestmentStatusChanged
	}
	inv.Status = to
	f.s.investments[id] = inv
	return nil
}
