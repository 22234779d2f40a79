package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	InvestmentActive    = "ACTIVE"
	InvestmentCompleted = "COMPLETED"
	InvestmentCancelled = "CANCELLED"
	InvestmentSuspended = "SUSPENDED"
)

const (
	FrequencyHourly  = "HOURLY"
	FrequencyDaily   = "DAILY"
	FrequencyWeekly  = "WEEKLY"
	FrequencyMonthly = "MONTHLY"
)

type Plan struct {
	ID              uuid.UUID
	Name            string
	DurationDays    int
	YieldPercent    decimal.Decimal // percent per full duration
	PayoutFrequency string
	MinStake        decimal.Decimal
	MaxStake        decimal.Decimal
}

type Investment struct {
	ID           uuid.UUID
	OwnerID      uuid.UUID
	PlanID       uuid.UUID
	PurchaseID   string
	Principal    decimal.Decimal
	Status       string
	StartAt      time.Time
	EndAt        time.Time
	LastPayoutAt *time.Time // nil until the first payout
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Populated on reads joined with plans
	Plan Plan
}

// PaidThrough returns the instant payouts were accounted up to
func (i Investment) PaidThrough() time.Time {
	if i.LastPayoutAt != nil {
		return *i.LastPayoutAt
	}
	return i.StartAt
}
