package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Amounts are kept with this many fractional digits, matching NUMERIC(28,8) columns
const AmountPlaces int32 = 8

const (
	EntryKindPayout     = "PAYOUT"
	EntryKindCommission = "COMMISSION"
	EntryKindDebit      = "DEBIT"
	EntryKindManual     = "MANUAL"
)

const (
	EntryStatusPending   = "PENDING"
	EntryStatusCompleted = "COMPLETED"
	EntryStatusFailed    = "FAILED"
)

// Account balance owned by the ledger
// Account ID is the owner user ID: every user has at most one wallet
type Account struct {
	ID        uuid.UUID
	Balance   decimal.Decimal
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LedgerEntry is immutable once completed
// Amount is signed: credits are positive, debits are negative
type LedgerEntry struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	Amount       decimal.Decimal
	Kind         string
	Reference    string
	BalanceAfter decimal.Decimal
	Status       string
	CreatedAt    time.Time
}

func IsEntryKind(kind string) bool {
	switch kind {
	case EntryKindPayout, EntryKindCommission, EntryKindDebit, EntryKindManual:
		return true
	default:
		return false
	}
}
